package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/usecase/conversation"
)

const (
	updateTimeout = 3 * time.Minute
	dedupeTTL     = 10 * time.Minute
)

const helpText = "ℹ️ Бот принимает отзывы и предложения.\n\n" +
	"/new — начать новое обращение\n" +
	"/cancel — отменить текущее обращение\n" +
	"/help — эта справка\n\n" +
	"Можно прикрепить фото и документы, а контакты указывать не обязательно."

// ConversationHandler обрабатывает события диалога.
type ConversationHandler interface {
	Handle(ctx context.Context, ev conversation.Event) []conversation.Prompt
}

// Handler переводит апдейты Telegram в события диалога.
type Handler struct {
	conv       ConversationHandler
	replier    *Replier
	dispatcher *Dispatcher
	dedupe     domain.Cache
	log        zerolog.Logger
}

// NewHandler создаёт обработчик. dedupe может быть nil.
func NewHandler(conv ConversationHandler, replier *Replier, dispatcher *Dispatcher, dedupe domain.Cache, log zerolog.Logger) *Handler {
	return &Handler{conv: conv, replier: replier, dispatcher: dispatcher, dedupe: dedupe, log: log}
}

// HandleUpdate ставит апдейт в очередь пользователя и сразу возвращается.
// Повторная доставка того же апдейта (ретрай вебхука) пропускается.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if h.seen(upd.UpdateID) {
		h.log.Debug().Int("update_id", upd.UpdateID).Msg("повторный апдейт пропущен")
		return
	}
	if cb := upd.CallbackQuery; cb != nil {
		h.replier.AnswerCallback(cb.ID)
	}

	if msg := upd.Message; msg != nil && msg.Chat != nil && isCommand(msg.Text, "/help") {
		h.replier.Reply(ctx, msg.Chat.ID, conversation.Prompt{Text: helpText})
		return
	}

	ev, ok := ToEvent(upd)
	if !ok {
		return
	}
	base := context.WithoutCancel(ctx)
	accepted := h.dispatcher.Submit(int64(ev.UserID), func() {
		jobCtx, cancel := context.WithTimeout(base, updateTimeout)
		defer cancel()
		for _, p := range h.conv.Handle(jobCtx, ev) {
			h.replier.Reply(jobCtx, ev.ChatID, p)
		}
	})
	if !accepted {
		h.log.Warn().Int64("user_id", int64(ev.UserID)).Msg("бот останавливается, апдейт пропущен")
	}
}

func (h *Handler) seen(updateID int) bool {
	if h.dedupe == nil || updateID == 0 {
		return false
	}
	err := h.dedupe.Once("tg:update:"+strconv.Itoa(updateID), dedupeTTL, func() error { return nil })
	if errors.Is(err, domain.ErrAlreadyDone) {
		return true
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("не удалось проверить повтор апдейта")
	}
	return false
}

// ToEvent переводит апдейт в событие диалога. Апдейты без пользователя
// и неподдерживаемые типы сообщений пропускаются.
func ToEvent(upd tgbotapi.Update) (conversation.Event, bool) {
	if cb := upd.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return conversation.Event{}, false
		}
		choice, ok := conversation.ParseChoice(cb.Data)
		if !ok {
			return conversation.Event{}, false
		}
		return conversation.Event{
			Kind:   conversation.EventChoice,
			UserID: conversation.UserID(cb.From.ID),
			ChatID: cb.Message.Chat.ID,
			Choice: choice,
		}, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return conversation.Event{}, false
	}
	ev := conversation.Event{UserID: conversation.UserID(msg.From.ID), ChatID: msg.Chat.ID}

	switch {
	case isCommand(msg.Text, "/start"):
		ev.Kind = conversation.EventStart
		ev.Greet = true
	case isCommand(msg.Text, "/new"):
		ev.Kind = conversation.EventStart
	case isCommand(msg.Text, "/cancel"):
		ev.Kind = conversation.EventCancel
	case msg.Contact != nil:
		ev.Kind = conversation.EventContact
		ev.Text = normalizePhone(msg.Contact.PhoneNumber)
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Kind = conversation.EventAttachment
		ev.BatchID = msg.MediaGroupID
		ev.Attachment = domain.AttachmentRef{
			FileID:   largest.FileID,
			UniqueID: largest.FileUniqueID,
			Kind:     domain.AttachmentPhoto,
		}
	case msg.Document != nil:
		ev.Kind = conversation.EventAttachment
		ev.BatchID = msg.MediaGroupID
		ev.Attachment = domain.AttachmentRef{
			FileID:   msg.Document.FileID,
			UniqueID: msg.Document.FileUniqueID,
			Kind:     domain.AttachmentDocument,
			FileName: msg.Document.FileName,
		}
	case msg.Text != "":
		ev.Kind = conversation.EventText
		ev.Text = msg.Text
	default:
		return conversation.Event{}, false
	}
	return ev, true
}

// isCommand учитывает форму /cmd@botname.
func isCommand(text, cmd string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name == cmd
}

func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone != "" && !strings.HasPrefix(phone, "+") {
		return "+" + phone
	}
	return phone
}
