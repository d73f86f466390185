package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop(), func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(zerolog.Nop(), func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	down.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookRequiresSecret(t *testing.T) {
	var got []tgbotapi.Update
	srv := NewServer(zerolog.Nop())
	srv.Router.With(WebhookSecretMiddleware("s3cret")).Post("/bot/webhook", WebhookHandler(func(_ context.Context, upd tgbotapi.Update) {
		got = append(got, upd)
	}))

	body := `{"update_id": 42, "message": {"message_id": 1, "text": "hi"}}`

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body))
	req.Header.Set(SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, got, 1)
	require.Equal(t, 42, got[0].UpdateID)

	req = httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader("{"))
	req.Header.Set(SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
