package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

// ErrConsumerClosed возвращается, когда брокер закрыл канал доставки.
var ErrConsumerClosed = errors.New("канал доставки RabbitMQ закрыт")

// RabbitNotificationQueue передаёт уведомления администраторам через RabbitMQ.
type RabbitNotificationQueue struct {
	conn  *amqp.Connection
	queue string
	log   zerolog.Logger

	// amqp.Channel нельзя использовать из нескольких горутин одновременно.
	mu sync.Mutex
	ch *amqp.Channel
}

var _ domain.NotificationQueue = (*RabbitNotificationQueue)(nil)

// NewRabbitNotificationQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitNotificationQueue(url, queue string, log zerolog.Logger) (*RabbitNotificationQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitNotificationQueue{conn: conn, ch: ch, queue: queue, log: log}, nil
}

// Publish публикует уведомление как persistent-сообщение.
func (q *RabbitNotificationQueue) Publish(ctx context.Context, n domain.AdminNotification) error {
	msg, err := encode(n)
	if err != nil {
		return err
	}
	start := time.Now()
	q.mu.Lock()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg)
	q.mu.Unlock()
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Consume обрабатывает сообщения по одному, пока не отменён ctx.
// Успешно обработанное сообщение подтверждается. Ошибка обработчика возвращает
// сообщение в очередь один раз, повторная ошибка его отбрасывает.
func (q *RabbitNotificationQueue) Consume(ctx context.Context, handle func(context.Context, domain.AdminNotification) error) error {
	q.mu.Lock()
	if err := q.ch.Qos(1, 0, false); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("qos: %w", err)
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrConsumerClosed
			}
			start := time.Now()
			err := process(ctx, d.Body, d.Redelivered, d, handle, q.log)
			metrics.ObserveNetworkRequest("rabbitmq", "consume", q.queue, start, err)
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitNotificationQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	chErr := q.ch.Close()
	connErr := q.conn.Close()
	return errors.Join(chErr, connErr)
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func process(ctx context.Context, body []byte, redelivered bool, ack acknowledger, handle func(context.Context, domain.AdminNotification) error, log zerolog.Logger) error {
	n, err := decode(body)
	if err != nil {
		log.Error().Err(err).Msg("queue: некорректное сообщение отброшено")
		_ = ack.Nack(false, false)
		return err
	}
	if err := handle(ctx, n); err != nil {
		log.Error().Err(err).Int64("feedback_id", n.FeedbackID).Bool("redelivered", redelivered).Msg("queue: не удалось обработать уведомление")
		_ = ack.Nack(false, !redelivered)
		return err
	}
	return ack.Ack(false)
}

func encode(n domain.AdminNotification) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal notification: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(n.FeedbackID, 10),
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}

func decode(body []byte) (domain.AdminNotification, error) {
	var n domain.AdminNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return domain.AdminNotification{}, fmt.Errorf("unmarshal notification: %w", err)
	}
	if n.FeedbackID == 0 {
		return domain.AdminNotification{}, errors.New("notification without feedback id")
	}
	return n, nil
}
