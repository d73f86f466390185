package submission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
)

type stubRepo struct {
	saved []domain.FeedbackRecord
	err   error
}

func (s *stubRepo) SaveFeedback(_ context.Context, rec domain.FeedbackRecord) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, rec)
	return int64(len(s.saved)), nil
}

func (s *stubRepo) GetFeedback(context.Context, int64) (domain.Feedback, error) {
	return domain.Feedback{}, domain.ErrFeedbackNotFound
}

type stubRecorder struct {
	users []int64
	err   error
}

func (s *stubRecorder) RecordSubmission(_ context.Context, userID int64) error {
	s.users = append(s.users, userID)
	return s.err
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []domain.AdminNotification
	err  error
}

func (s *stubNotifier) Notify(_ context.Context, n domain.AdminNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func TestFinalizeSavesRecordsAndNotifies(t *testing.T) {
	repo := &stubRepo{}
	rec := &stubRecorder{}
	notifier := &stubNotifier{}
	f := NewFinalizer(repo, rec, notifier, zerolog.Nop())

	record := domain.FeedbackRecord{
		Message:     "Broken AC",
		Branch:      "Chilonzor",
		Identity:    &domain.Identity{Name: "Aziz", Phone: "+998901234567"},
		Attachments: []domain.Attachment{{Path: "uploads/photo/a.jpg", Kind: domain.AttachmentPhoto}},
	}
	id, err := f.Finalize(context.Background(), 42, record)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f.Wait()

	if id != 1 {
		t.Fatalf("ожидали id 1, получили %d", id)
	}
	if len(rec.users) != 1 || rec.users[0] != 42 {
		t.Fatalf("ожидали отметку времени для пользователя 42, получили %v", rec.users)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("ожидали одно уведомление, получили %d", len(notifier.sent))
	}
	got := notifier.sent[0]
	want := domain.AdminNotification{
		FeedbackID:  1,
		Text:        "Broken AC",
		Branch:      "Chilonzor",
		Name:        "Aziz",
		Phone:       "+998901234567",
		Attachments: record.Attachments,
		CreatedAt:   got.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("уведомление отличается (-want +got):\n%s", diff)
	}
}

func TestFinalizeSaveErrorHasNoSideEffects(t *testing.T) {
	repo := &stubRepo{err: errors.New("connection refused")}
	rec := &stubRecorder{}
	notifier := &stubNotifier{}
	f := NewFinalizer(repo, rec, notifier, zerolog.Nop())

	if _, err := f.Finalize(context.Background(), 1, domain.FeedbackRecord{Message: "x"}); err == nil {
		t.Fatal("ожидали ошибку сохранения")
	}
	f.Wait()
	if len(rec.users) != 0 {
		t.Fatalf("время отправки не должно обновляться при ошибке")
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("уведомление не должно отправляться при ошибке")
	}
}

func TestFinalizeIgnoresSecondaryFailures(t *testing.T) {
	repo := &stubRepo{}
	rec := &stubRecorder{err: errors.New("upsert failed")}
	notifier := &stubNotifier{err: errors.New("telegram down")}
	f := NewFinalizer(repo, rec, notifier, zerolog.Nop())

	id, err := f.Finalize(context.Background(), 1, domain.FeedbackRecord{Message: "x", Branch: "b"})
	f.Wait()
	if err != nil || id == 0 {
		t.Fatalf("ошибки лимита и уведомления не должны ломать сохранение: id=%d err=%v", id, err)
	}
}

func TestFinalizeWithoutNotifier(t *testing.T) {
	f := NewFinalizer(&stubRepo{}, &stubRecorder{}, nil, zerolog.Nop())
	if _, err := f.Finalize(context.Background(), 1, domain.FeedbackRecord{Message: "x"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f.Wait()
}
