package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-bot/internal/domain"
)

func TestFormatNotificationAnonymous(t *testing.T) {
	text := FormatNotification(domain.AdminNotification{
		FeedbackID: 12,
		Text:       "Broken AC <script>",
		Branch:     "Chilonzor",
		CreatedAt:  time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local),
	})
	require.Contains(t, text, "<b>Филиал:</b> Chilonzor")
	require.Contains(t, text, "🔒 Анонимно")
	require.Contains(t, text, "Broken AC &lt;script&gt;")
	require.Contains(t, text, "#12")
	require.Contains(t, text, "01.05.2024 10:30")
	require.NotContains(t, text, "Файлов")
}

func TestFormatNotificationWithContacts(t *testing.T) {
	text := FormatNotification(domain.AdminNotification{
		FeedbackID:  3,
		Text:        "x",
		Branch:      "Sergeli",
		Name:        "Aziz",
		Phone:       "+998901234567",
		Attachments: []domain.Attachment{{Path: "a"}, {Path: "b"}},
	})
	require.Contains(t, text, "<b>От:</b> Aziz")
	require.Contains(t, text, "+998901234567")
	require.Contains(t, text, "Файлов: 2")
}

type fakeSender struct {
	sent     []tgbotapi.Chattable
	failFor  map[string]bool
	failText bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		if f.failText {
			return tgbotapi.Message{}, errors.New("chat not found")
		}
	case tgbotapi.PhotoConfig:
		if f.failFor[string(v.File.(tgbotapi.FilePath))] {
			return tgbotapi.Message{}, errors.New("upload failed")
		}
	case tgbotapi.DocumentConfig:
		if f.failFor[string(v.File.(tgbotapi.FilePath))] {
			return tgbotapi.Message{}, errors.New("upload failed")
		}
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifierSendsTextAndFiles(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"uploads/photo/bad.jpg": true}}
	n := NewTelegramNotifier(sender, -100, zerolog.Nop())

	err := n.Notify(context.Background(), domain.AdminNotification{
		FeedbackID: 1,
		Text:       "Broken AC",
		Attachments: []domain.Attachment{
			{Path: "uploads/photo/bad.jpg", Kind: domain.AttachmentPhoto},
			{Path: "uploads/document/act.pdf", Kind: domain.AttachmentDocument},
		},
	})
	require.NoError(t, err, "ошибка одного файла не должна ломать уведомление")
	require.Len(t, sender.sent, 3)

	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	require.True(t, strings.HasPrefix(msg.Text, "📝"))
	_, ok = sender.sent[2].(tgbotapi.DocumentConfig)
	require.True(t, ok)
}

func TestTelegramNotifierAllFilesFailed(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"uploads/photo/a.jpg": true}}
	n := NewTelegramNotifier(sender, -100, zerolog.Nop())
	notification := domain.AdminNotification{
		FeedbackID:  7,
		Text:        "Broken AC",
		Attachments: []domain.Attachment{{Path: "uploads/photo/a.jpg", Kind: domain.AttachmentPhoto}},
	}

	require.NoError(t, n.Notify(context.Background(), notification))

	texts := 0
	for _, c := range sender.sent {
		if _, ok := c.(tgbotapi.MessageConfig); ok {
			texts++
		}
	}
	require.Equal(t, 1, texts, "текст уже доставлен, повторять его нельзя")
}

func TestTelegramNotifierTextFailed(t *testing.T) {
	sender := &fakeSender{failText: true}
	n := NewTelegramNotifier(sender, -100, zerolog.Nop())
	err := n.Notify(context.Background(), domain.AdminNotification{
		FeedbackID:  8,
		Text:        "Broken AC",
		Attachments: []domain.Attachment{{Path: "uploads/photo/a.jpg", Kind: domain.AttachmentPhoto}},
	})
	require.Error(t, err)
	require.Len(t, sender.sent, 1)
}

func TestTelegramNotifierWithoutChat(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 0, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), domain.AdminNotification{FeedbackID: 1}))
	require.Empty(t, sender.sent)
}

type memoryQueue struct {
	published []domain.AdminNotification
	err       error
}

func (m *memoryQueue) Publish(_ context.Context, n domain.AdminNotification) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, n)
	return nil
}

func (m *memoryQueue) Consume(context.Context, func(context.Context, domain.AdminNotification) error) error {
	return nil
}

func TestQueuedNotifier(t *testing.T) {
	q := &memoryQueue{}
	require.NoError(t, NewQueuedNotifier(q).Notify(context.Background(), domain.AdminNotification{FeedbackID: 5}))
	require.Len(t, q.published, 1)

	q.err = errors.New("channel closed")
	require.ErrorContains(t, NewQueuedNotifier(q).Notify(context.Background(), domain.AdminNotification{FeedbackID: 6}), "#6")
}
