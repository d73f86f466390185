package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-bot/internal/domain"
)

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func sampleNotification() domain.AdminNotification {
	return domain.AdminNotification{
		FeedbackID:  7,
		Text:        "Broken AC",
		Branch:      "Chilonzor",
		Attachments: []domain.Attachment{{Path: "uploads/photo/p1.jpg", Kind: domain.AttachmentPhoto}},
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEncodePersistentJSON(t *testing.T) {
	msg, err := encode(sampleNotification())
	require.NoError(t, err)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, "7", msg.MessageId)

	got, err := decode(msg.Body)
	require.NoError(t, err)
	require.Equal(t, sampleNotification(), got)
}

func TestProcessAcksHandled(t *testing.T) {
	msg, _ := encode(sampleNotification())
	ack := &fakeAck{}
	var handled domain.AdminNotification
	err := process(context.Background(), msg.Body, false, ack, func(_ context.Context, n domain.AdminNotification) error {
		handled = n
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, ack.acked)
	require.Equal(t, int64(7), handled.FeedbackID)
}

func TestProcessRequeuesOnce(t *testing.T) {
	msg, _ := encode(sampleNotification())
	failing := func(context.Context, domain.AdminNotification) error { return errors.New("telegram down") }

	first := &fakeAck{}
	require.Error(t, process(context.Background(), msg.Body, false, first, failing, zerolog.Nop()))
	require.True(t, first.nacked)
	require.True(t, first.requeue)

	second := &fakeAck{}
	require.Error(t, process(context.Background(), msg.Body, true, second, failing, zerolog.Nop()))
	require.True(t, second.nacked)
	require.False(t, second.requeue)
}

func TestProcessDropsMalformed(t *testing.T) {
	ack := &fakeAck{}
	called := false
	err := process(context.Background(), []byte("{not json"), false, ack, func(context.Context, domain.AdminNotification) error {
		called = true
		return nil
	}, zerolog.Nop())
	require.Error(t, err)
	require.False(t, called)
	require.True(t, ack.nacked)
	require.False(t, ack.requeue)
}
