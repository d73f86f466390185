package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

//go:embed schema.sql
var schemaSQL string

// RequiredTables — таблицы, без которых бот не запускается.
var RequiredTables = []string{"feedback", "feedback_files", "feedback_submissions"}

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ domain.FeedbackRepo   = (*Postgres)(nil)
	_ domain.SubmissionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveFeedback сохраняет обращение и его файлы в одной транзакции.
func (p *Postgres) SaveFeedback(ctx context.Context, rec domain.FeedbackRecord) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback", start, err)
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	name, phone := identityColumns(rec.Identity)
	createdAt := p.now().UTC()

	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO feedback (message, branch, name, phone, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, rec.Message, rec.Branch, name, phone, createdAt).Scan(&id)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback", start, err)
		return 0, fmt.Errorf("insert feedback: %w", err)
	}

	for _, a := range rec.Attachments {
		if _, err = tx.Exec(ctx, `
INSERT INTO feedback_files (feedback_id, file_path, file_type, created_at)
VALUES ($1, $2, $3, $4)
`, id, a.Path, string(a.Kind), createdAt); err != nil {
			metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback_files", start, err)
			return 0, fmt.Errorf("insert feedback file: %w", err)
		}
	}

	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback", start, err)
	if err != nil {
		return 0, fmt.Errorf("commit feedback: %w", err)
	}
	return id, nil
}

// GetFeedback возвращает обращение вместе с файлами.
func (p *Postgres) GetFeedback(ctx context.Context, id int64) (domain.Feedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		fb          domain.Feedback
		name, phone *string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, message, branch, name, phone, created_at
FROM feedback
WHERE id = $1
`, id).Scan(&fb.ID, &fb.Message, &fb.Branch, &name, &phone, &fb.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "feedback_select", "feedback", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Feedback{}, domain.ErrFeedbackNotFound
	}
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("select feedback: %w", err)
	}
	if name != nil {
		fb.Name = *name
	}
	if phone != nil {
		fb.Phone = *phone
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT file_path, file_type
FROM feedback_files
WHERE feedback_id = $1
ORDER BY id
`, id)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "feedback_select", "feedback_files", start, err)
		return domain.Feedback{}, fmt.Errorf("select feedback files: %w", err)
	}
	fb.Attachments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Attachment, error) {
		var (
			a    domain.Attachment
			kind string
		)
		err := row.Scan(&a.Path, &kind)
		a.Kind = domain.AttachmentKind(kind)
		return a, err
	})
	metrics.ObserveNetworkRequest("postgres", "feedback_select", "feedback_files", start, err)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("scan feedback files: %w", err)
	}
	return fb, nil
}

// LastSubmission возвращает время последней отправки по хэшу пользователя.
func (p *Postgres) LastSubmission(ctx context.Context, userHash string) (time.Time, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var at time.Time
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT last_submission_time FROM feedback_submissions WHERE user_id_hash = $1
`, userHash).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "submission_select", "feedback_submissions", start, nil)
		return time.Time{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "submission_select", "feedback_submissions", start, err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select submission: %w", err)
	}
	return at, true, nil
}

// UpsertSubmission записывает время отправки, последняя запись побеждает.
func (p *Postgres) UpsertSubmission(ctx context.Context, userHash string, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO feedback_submissions (user_id_hash, last_submission_time)
VALUES ($1, $2)
ON CONFLICT (user_id_hash) DO UPDATE SET last_submission_time = EXCLUDED.last_submission_time
`, userHash, at.UTC())
	metrics.ObserveNetworkRequest("postgres", "submission_upsert", "feedback_submissions", start, err)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// Migrate создаёт таблицы, если их ещё нет.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// VerifySchema проверяет, что в текущей схеме есть все нужные таблицы.
func (p *Postgres) VerifySchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name = ANY($1)
`, RequiredTables)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan tables: %w", err)
	}
	if missing := missingTables(RequiredTables, found); len(missing) > 0 {
		return fmt.Errorf("нет таблиц: %s", strings.Join(missing, ", "))
	}
	return nil
}

func missingTables(required, found []string) []string {
	have := make(map[string]struct{}, len(found))
	for _, t := range found {
		have[t] = struct{}{}
	}
	var missing []string
	for _, t := range required {
		if _, ok := have[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func identityColumns(id *domain.Identity) (name, phone *string) {
	if id == nil {
		return nil, nil
	}
	if n := strings.TrimSpace(id.Name); n != "" {
		name = &n
	}
	if ph := strings.TrimSpace(id.Phone); ph != "" {
		phone = &ph
	}
	return name, phone
}
