package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"feedback-bot/internal/adapters/telegram"
	"feedback-bot/internal/infra/metrics"
	"feedback-bot/internal/usecase/conversation"
)

const contactButtonLabel = "📞 Отправить номер"

// Sender — часть tgbotapi.BotAPI, через которую бот отправляет сообщения.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Replier отрисовывает подсказки диалога в сообщения Telegram.
type Replier struct {
	bot Sender
	log zerolog.Logger
}

// NewReplier создаёт отправителя подсказок.
func NewReplier(bot Sender, log zerolog.Logger) *Replier {
	return &Replier{bot: bot, log: log}
}

// Reply отправляет подсказку. Длинный текст режется на части, клавиатура
// прикрепляется к первой части.
func (r *Replier) Reply(_ context.Context, chatID int64, p conversation.Prompt) {
	parts := telegram.SplitMessage(p.Text)
	markup := replyMarkup(p)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && markup != nil {
			msg.ReplyMarkup = markup
		}
		start := time.Now()
		_, err := r.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "user_chat", start, err)
		if err != nil {
			r.log.Error().Err(err).Int64("chat_id", chatID).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// AnswerCallback убирает индикатор загрузки на нажатой кнопке.
func (r *Replier) AnswerCallback(id string) {
	start := time.Now()
	_, err := r.bot.Request(tgbotapi.NewCallback(id, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "", start, err)
	if err != nil {
		r.log.Warn().Err(err).Msg("не удалось ответить на callback")
	}
}

func replyMarkup(p conversation.Prompt) interface{} {
	switch {
	case len(p.Options) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Options))
		for _, row := range p.Options {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, opt := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
		return markup
	case p.RequestContact:
		markup := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact(contactButtonLabel),
		))
		markup.OneTimeKeyboard = true
		return markup
	case p.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(true)
	}
	return nil
}
