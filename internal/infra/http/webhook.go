package http

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretTokenHeader — заголовок, в котором Telegram передаёт secret_token вебхука.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecretMiddleware пропускает только запросы с верным secret_token.
func WebhookSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SecretTokenHeader)
			if secret == "" || !hmac.Equal([]byte(got), []byte(secret)) {
				http.Error(w, "подпись недействительна", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookHandler разбирает апдейт и передаёт его обработчику.
// Обработчик должен вернуться быстро, иначе Telegram повторит доставку.
func WebhookHandler(handle func(ctx context.Context, upd tgbotapi.Update)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
			http.Error(w, "некорректный апдейт", http.StatusBadRequest)
			return
		}
		handle(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	}
}
