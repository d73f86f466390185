package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

// DefaultCooldown совпадает с интервалом между обращениями по умолчанию.
const DefaultCooldown = 30 * time.Second

// Limiter решает, может ли пользователь начать новое обращение.
type Limiter struct {
	repo     domain.SubmissionRepo
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewLimiter создаёт ограничитель частоты обращений.
func NewLimiter(repo domain.SubmissionRepo, cooldown time.Duration, log zerolog.Logger) *Limiter {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Limiter{repo: repo, cooldown: cooldown, log: log, now: time.Now}
}

// HashUserID возвращает необратимый хэш идентификатора пользователя.
func HashUserID(userID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10)))
	return hex.EncodeToString(sum[:])
}

// Check проверяет, прошло ли достаточно времени с последней отправки.
// Время последней отправки возвращается всегда, когда оно известно.
//
// Ошибка чтения не блокирует пользователя: при недоступной БД обращение разрешается.
func (l *Limiter) Check(ctx context.Context, userID int64) (bool, *time.Time) {
	last, found, err := l.repo.LastSubmission(ctx, HashUserID(userID))
	if err != nil {
		l.log.Warn().Err(err).Msg("ratelimit: не удалось проверить лимит, пропускаем")
		return true, nil
	}
	if !found {
		return true, nil
	}
	if l.now().Sub(last) < l.cooldown {
		metrics.IncRateLimited()
		return false, &last
	}
	return true, &last
}

// Remaining возвращает, сколько осталось ждать до следующей отправки.
func (l *Limiter) Remaining(last time.Time) time.Duration {
	left := l.cooldown - l.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// RecordSubmission фиксирует время успешной отправки.
func (l *Limiter) RecordSubmission(ctx context.Context, userID int64) error {
	if err := l.repo.UpsertSubmission(ctx, HashUserID(userID), l.now().UTC()); err != nil {
		return fmt.Errorf("обновление времени отправки: %w", err)
	}
	return nil
}
