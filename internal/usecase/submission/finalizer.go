package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

const notifyTimeout = time.Minute

// SubmissionRecorder фиксирует время успешной отправки для лимита частоты.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, userID int64) error
}

// Finalizer сохраняет обращение и уведомляет администраторов.
type Finalizer struct {
	repo     domain.FeedbackRepo
	limiter  SubmissionRecorder
	notifier domain.AdminNotifier
	log      zerolog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewFinalizer создаёт финализатор. notifier может быть nil.
func NewFinalizer(repo domain.FeedbackRepo, limiter SubmissionRecorder, notifier domain.AdminNotifier, log zerolog.Logger) *Finalizer {
	return &Finalizer{repo: repo, limiter: limiter, notifier: notifier, log: log, now: time.Now}
}

// Finalize атомарно сохраняет обращение вместе с файлами и возвращает его номер.
// Ошибка сохранения возвращается вызывающему без побочных эффектов.
func (f *Finalizer) Finalize(ctx context.Context, userID int64, record domain.FeedbackRecord) (int64, error) {
	id, err := f.repo.SaveFeedback(ctx, record)
	if err != nil {
		metrics.FeedbackSaveErrors.Inc()
		return 0, fmt.Errorf("сохранение обращения: %w", err)
	}
	metrics.IncFeedbackSubmitted(record.Identity != nil)

	if err := f.limiter.RecordSubmission(ctx, userID); err != nil {
		f.log.Error().Err(err).Int64("feedback_id", id).Msg("submission: не удалось обновить время отправки")
	}

	f.notify(ctx, buildNotification(id, record, f.now()))
	return id, nil
}

// Wait дожидается отправки запущенных уведомлений.
func (f *Finalizer) Wait() {
	f.wg.Wait()
}

// notify отправляет уведомление в фоне: ошибки логируются и не влияют на пользователя.
func (f *Finalizer) notify(ctx context.Context, n domain.AdminNotification) {
	if f.notifier == nil {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := f.notifier.Notify(notifyCtx, n); err != nil {
			metrics.NotifyErrors.Inc()
			f.log.Error().Err(err).Int64("feedback_id", n.FeedbackID).Msg("submission: не удалось уведомить администраторов")
		}
	}()
}

func buildNotification(id int64, record domain.FeedbackRecord, at time.Time) domain.AdminNotification {
	n := domain.AdminNotification{
		FeedbackID:  id,
		Text:        record.Message,
		Branch:      record.Branch,
		Attachments: append([]domain.Attachment(nil), record.Attachments...),
		CreatedAt:   at,
	}
	if record.Identity != nil {
		n.Name = record.Identity.Name
		n.Phone = record.Identity.Phone
	}
	return n
}
