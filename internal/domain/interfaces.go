package domain

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyDone возвращается Cache.Once, если ключ уже встречался.
var ErrAlreadyDone = errors.New("ключ уже обработан")

// FeedbackRepo сохраняет обращения.
type FeedbackRepo interface {
	// SaveFeedback атомарно сохраняет обращение вместе с файлами и возвращает его идентификатор.
	SaveFeedback(ctx context.Context, record FeedbackRecord) (int64, error)
	GetFeedback(ctx context.Context, id int64) (Feedback, error)
}

// SubmissionRepo хранит время последней отправки по хэшу пользователя.
type SubmissionRepo interface {
	LastSubmission(ctx context.Context, userHash string) (time.Time, bool, error)
	UpsertSubmission(ctx context.Context, userHash string, at time.Time) error
}

// AttachmentStore скачивает файл из Telegram и возвращает стабильный путь к нему.
// Повторный вызов для того же файла не скачивает его заново.
type AttachmentStore interface {
	ResolveAndStore(ctx context.Context, ref AttachmentRef) (Attachment, error)
}

// AdminNotifier доставляет администраторам уведомление о новом обращении.
type AdminNotifier interface {
	Notify(ctx context.Context, n AdminNotification) error
}

// NotificationQueue передаёт уведомления между ботом и воркером рассылки.
type NotificationQueue interface {
	Publish(ctx context.Context, n AdminNotification) error
	Consume(ctx context.Context, handle func(context.Context, AdminNotification) error) error
}

// Cache используется для идемпотентной обработки входящих апдейтов.
type Cache interface {
	// Once выполняет fn, только если ключ ещё не встречался в течение ttl,
	// иначе возвращает ErrAlreadyDone. Ошибка fn освобождает ключ.
	Once(key string, ttl time.Duration, fn func() error) error
}
