package notify

import (
	"context"
	"fmt"

	"feedback-bot/internal/domain"
)

// QueuedNotifier публикует уведомление в очередь, откуда его забирает воркер рассылки.
type QueuedNotifier struct {
	queue domain.NotificationQueue
}

var _ domain.AdminNotifier = (*QueuedNotifier)(nil)

// NewQueuedNotifier создаёт уведомитель поверх очереди.
func NewQueuedNotifier(queue domain.NotificationQueue) *QueuedNotifier {
	return &QueuedNotifier{queue: queue}
}

// Notify ставит уведомление в очередь.
func (q *QueuedNotifier) Notify(ctx context.Context, n domain.AdminNotification) error {
	if err := q.queue.Publish(ctx, n); err != nil {
		return fmt.Errorf("публикация уведомления #%d: %w", n.FeedbackID, err)
	}
	return nil
}
