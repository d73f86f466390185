package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"feedback-bot/internal/adapters/telegram"
	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

// Sender отправляет сообщения через Bot API.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier отправляет уведомления в чат администраторов.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
	log    zerolog.Logger
}

var _ domain.AdminNotifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier создаёт уведомитель для чата chatID.
func NewTelegramNotifier(bot Sender, chatID int64, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, log: log}
}

// Notify отправляет текст обращения, затем каждый файл отдельным сообщением.
// Ошибка отправки одного файла не мешает остальным.
func (t *TelegramNotifier) Notify(ctx context.Context, n domain.AdminNotification) error {
	if t.chatID == 0 {
		t.log.Warn().Int64("feedback_id", n.FeedbackID).Msg("ADMIN_CHAT_ID не задан, уведомление пропущено")
		return nil
	}

	for _, part := range telegram.SplitMessage(FormatNotification(n)) {
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if err := t.send(msg, "send_message"); err != nil {
			return fmt.Errorf("отправка уведомления #%d: %w", n.FeedbackID, err)
		}
	}

	// Текст уже доставлен: ошибки файлов только логируются, иначе повторная
	// доставка из очереди продублирует уведомление.
	failed := 0
	for i, a := range n.Attachments {
		if err := ctx.Err(); err != nil {
			t.log.Warn().Err(err).Int64("feedback_id", n.FeedbackID).Int("skipped", len(n.Attachments)-i).Msg("отправка файлов прервана")
			return nil
		}
		if err := t.sendFile(n.FeedbackID, a); err != nil {
			failed++
			metrics.NotifyErrors.Inc()
			t.log.Error().Err(err).Str("path", a.Path).Int64("feedback_id", n.FeedbackID).Msg("не удалось отправить файл администраторам")
		}
	}
	if failed > 0 {
		t.log.Warn().Int64("feedback_id", n.FeedbackID).Int("failed", failed).Int("total", len(n.Attachments)).Msg("часть файлов обращения не доставлена")
	}
	return nil
}

func (t *TelegramNotifier) sendFile(id int64, a domain.Attachment) error {
	caption := telegram.Truncate(fmt.Sprintf("Обращение #%d", id), telegram.CaptionLimit)
	file := tgbotapi.FilePath(a.Path)
	if a.Kind == domain.AttachmentPhoto {
		photo := tgbotapi.NewPhoto(t.chatID, file)
		photo.Caption = caption
		return t.send(photo, "send_photo")
	}
	doc := tgbotapi.NewDocument(t.chatID, file)
	doc.Caption = caption
	return t.send(doc, "send_document")
}

func (t *TelegramNotifier) send(c tgbotapi.Chattable, op string) error {
	start := time.Now()
	_, err := t.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(t.chatID, 10), start, err)
	return err
}
