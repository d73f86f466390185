package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feedback-bot/internal/domain"
)

type fakeStore struct {
	migrated bool
	checkErr error
	feedback map[int64]domain.Feedback
}

func (f *fakeStore) Migrate(context.Context) error { f.migrated = true; return nil }

func (f *fakeStore) VerifySchema(context.Context) error { return f.checkErr }

func (f *fakeStore) GetFeedback(_ context.Context, id int64) (domain.Feedback, error) {
	fb, ok := f.feedback[id]
	if !ok {
		return domain.Feedback{}, domain.ErrFeedbackNotFound
	}
	return fb, nil
}

func run(t *testing.T, store *fakeStore, args ...string) (string, error) {
	t.Helper()
	closed := false
	t.Cleanup(func() { require.True(t, closed, "соединение должно закрываться") })

	cmd := NewRootCommand(func(_ context.Context, dsn string) (Store, func(), error) {
		require.Equal(t, "postgres://test", dsn)
		return store, func() { closed = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--dsn", "postgres://test"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	store := &fakeStore{}
	out, err := run(t, store, "migrate")
	require.NoError(t, err)
	require.True(t, store.migrated)
	require.Contains(t, out, "схема применена")
}

func TestCheckCommandReportsMissingTables(t *testing.T) {
	store := &fakeStore{checkErr: errors.New("нет таблиц: feedback_files")}
	_, err := run(t, store, "check")
	require.ErrorContains(t, err, "feedback_files")
}

func TestConnectFailure(t *testing.T) {
	cmd := NewRootCommand(func(context.Context, string) (Store, func(), error) {
		return nil, nil, errors.New("connection refused")
	})
	cmd.SetArgs([]string{"--dsn", "postgres://test", "check"})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "подключение к БД")
}

func TestShowCommand(t *testing.T) {
	store := &fakeStore{feedback: map[int64]domain.Feedback{
		5: {
			ID:          5,
			Message:     "Broken AC",
			Branch:      "Chilonzor",
			Name:        "Aziz",
			Phone:       "+998901234567",
			CreatedAt:   time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
			Attachments: []domain.Attachment{{Path: "uploads/photo/a.jpg", Kind: domain.AttachmentPhoto}},
		},
	}}
	out, err := run(t, store, "show", "5")
	require.NoError(t, err)
	require.Contains(t, out, "Обращение #5 от 01.05.2024 10:30")
	require.Contains(t, out, "Филиал: Chilonzor")
	require.Contains(t, out, "Aziz +998901234567")
	require.Contains(t, out, "[photo] uploads/photo/a.jpg")
}

func TestShowCommandAnonymous(t *testing.T) {
	store := &fakeStore{feedback: map[int64]domain.Feedback{2: {ID: 2, Message: "x", Branch: "Sergeli"}}}
	out, err := run(t, store, "show", "2")
	require.NoError(t, err)
	require.Contains(t, out, "анонимно")
}

func TestShowCommandNotFound(t *testing.T) {
	_, err := run(t, &fakeStore{}, "show", "9")
	require.ErrorContains(t, err, "#9 не найдено")
}

func TestShowCommandRejectsBadID(t *testing.T) {
	cmd := NewRootCommand(func(context.Context, string) (Store, func(), error) {
		t.Fatal("подключение не нужно при неверном номере")
		return nil, nil, nil
	})
	cmd.SetArgs([]string{"--dsn", "postgres://test", "show", "abc"})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "некорректный номер")
}
