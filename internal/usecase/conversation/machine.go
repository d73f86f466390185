package conversation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

const maxNameLength = 100

var phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{6,19}$`)

// EventKind описывает тип входящего события.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventCancel
	EventText
	EventChoice
	EventAttachment
	// EventContact несёт в Text номер из кнопки «поделиться контактом».
	EventContact
)

// Event — входящее событие от пользователя, не зависящее от транспорта.
type Event struct {
	Kind   EventKind
	UserID UserID
	ChatID int64
	// Greet добавляет приветствие к выбору филиала (/start).
	Greet      bool
	Text       string
	Choice     Choice
	Attachment domain.AttachmentRef
	BatchID    string
}

// RateLimiter проверяет частоту обращений.
type RateLimiter interface {
	Check(ctx context.Context, userID int64) (bool, *time.Time)
	Remaining(last time.Time) time.Duration
}

// Finalizer сохраняет завершённое обращение.
type Finalizer interface {
	Finalize(ctx context.Context, userID int64, record domain.FeedbackRecord) (int64, error)
}

// Machine ведёт пользователя по шагам диалога.
type Machine struct {
	sessions  *SessionStore
	pending   *PendingStore
	batcher   *Batcher
	limiter   RateLimiter
	finalizer Finalizer
	branches  []string
	log       zerolog.Logger
	now       func() time.Time
}

// NewMachine создаёт машину состояний диалога.
func NewMachine(sessions *SessionStore, pending *PendingStore, batcher *Batcher, limiter RateLimiter, finalizer Finalizer, branches []string, log zerolog.Logger) *Machine {
	return &Machine{
		sessions:  sessions,
		pending:   pending,
		batcher:   batcher,
		limiter:   limiter,
		finalizer: finalizer,
		branches:  branches,
		log:       log,
		now:       time.Now,
	}
}

// Handle обрабатывает событие и возвращает сообщения для пользователя.
// События одного пользователя обрабатываются последовательно, разных — независимо.
// События, которых текущий шаг не ожидает, игнорируются.
func (m *Machine) Handle(ctx context.Context, ev Event) []Prompt {
	entry := m.sessions.Lock(ev.UserID)
	defer func() {
		entry.Unlock()
		metrics.SetActiveSessions(m.sessions.Len())
	}()

	switch ev.Kind {
	case EventStart:
		return m.start(ctx, entry, ev)
	case EventCancel:
		return m.cancel(entry)
	case EventText:
		return m.text(ctx, entry, ev)
	case EventChoice:
		return m.choice(ctx, entry, ev)
	case EventAttachment:
		return m.attachment(ctx, entry, ev)
	case EventContact:
		return m.contact(ctx, entry, ev)
	}
	return nil
}

// Step возвращает текущий шаг пользователя.
func (m *Machine) Step(userID UserID) Step {
	entry := m.sessions.Lock(userID)
	defer entry.Unlock()
	sess, ok := entry.Get()
	if !ok {
		return StepIdle
	}
	return sess.Step()
}

func (m *Machine) start(ctx context.Context, entry *Entry[UserID, *Session], ev Event) []Prompt {
	allowed, last := m.limiter.Check(ctx, int64(ev.UserID))
	if !allowed {
		var wait time.Duration
		if last != nil {
			wait = m.limiter.Remaining(*last)
		}
		return []Prompt{rateLimitedPrompt(wait)}
	}
	m.discard(entry)

	sess := newSession(ev.UserID, ev.ChatID, m.now())
	sess.fire(ctx, evStart)
	entry.Set(sess)
	return []Prompt{branchPrompt(m.branches, ev.Greet)}
}

func (m *Machine) cancel(entry *Entry[UserID, *Session]) []Prompt {
	if _, ok := entry.Get(); !ok {
		return nil
	}
	m.discard(entry)
	return []Prompt{cancelledPrompt()}
}

// discard удаляет сессию и её незавершённое обращение. Группа вложений,
// ещё ожидающая таймера, будет отброшена при срабатывании.
func (m *Machine) discard(entry *Entry[UserID, *Session]) {
	prev, ok := entry.Get()
	if !ok {
		return
	}
	if prev.PendingKey != "" {
		m.pending.Remove(prev.PendingKey)
	}
	entry.Delete()
}

func (m *Machine) text(ctx context.Context, entry *Entry[UserID, *Session], ev Event) []Prompt {
	sess, ok := entry.Get()
	if !ok {
		return nil
	}
	text := strings.TrimSpace(ev.Text)

	switch sess.Step() {
	case StepAwaitingFeedbackText:
		if text == "" || strings.HasPrefix(text, "/") {
			return []Prompt{feedbackTextInvalidPrompt()}
		}
		key := NewFeedbackKey()
		m.pending.Put(&PendingSubmission{
			Key:       key,
			UserID:    sess.UserID,
			ChatID:    ev.ChatID,
			Text:      text,
			Branch:    sess.Branch,
			CreatedAt: m.now(),
		})
		sess.FeedbackText = text
		sess.PendingKey = key
		sess.fire(ctx, evFeedbackText)
		return []Prompt{attachDecisionPrompt(key)}

	case StepAwaitingName:
		if !m.pending.Exists(sess.PendingKey) {
			return []Prompt{notFoundPrompt()}
		}
		if text == "" || strings.HasPrefix(text, "/") || utf8.RuneCountInString(text) > maxNameLength {
			return []Prompt{nameInvalidPrompt()}
		}
		sess.DisplayName = text
		sess.fire(ctx, evName)
		return []Prompt{phonePrompt()}

	case StepAwaitingPhone:
		if !m.pending.Exists(sess.PendingKey) {
			return []Prompt{notFoundPrompt()}
		}
		if !phoneRegex.MatchString(text) {
			return []Prompt{phoneInvalidPrompt()}
		}
		sess.Phone = text
		return m.finalize(ctx, entry, sess, &domain.Identity{Name: sess.DisplayName, Phone: sess.Phone})
	}
	return nil
}

// contact принимает присланный контакт только как ответ на запрос телефона.
func (m *Machine) contact(ctx context.Context, entry *Entry[UserID, *Session], ev Event) []Prompt {
	sess, ok := entry.Get()
	if !ok || sess.Step() != StepAwaitingPhone {
		return nil
	}
	return m.text(ctx, entry, ev)
}

func (m *Machine) choice(ctx context.Context, entry *Entry[UserID, *Session], ev Event) []Prompt {
	c := ev.Choice
	sess, ok := entry.Get()

	if c.Action == ActionBranch {
		if !ok || sess.Step() != StepAwaitingBranch {
			return nil
		}
		idx, err := strconv.Atoi(c.Value)
		if err != nil || idx < 0 || idx >= len(m.branches) {
			return []Prompt{branchPrompt(m.branches, false)}
		}
		sess.Branch = m.branches[idx]
		sess.fire(ctx, evBranch)
		return []Prompt{feedbackTextPrompt(sess.Branch)}
	}

	if !m.pending.Exists(c.Key) {
		return []Prompt{notFoundPrompt()}
	}
	if !ok || sess.PendingKey != c.Key {
		return nil
	}

	switch {
	case c.Action == ActionAttach && c.Value == ValueYes:
		if sess.fire(ctx, evAttachYes) {
			return []Prompt{awaitAttachmentsPrompt(c.Key)}
		}
	case c.Action == ActionAttach && c.Value == ValueNo:
		if sess.fire(ctx, evAttachNo) {
			return []Prompt{identityPrompt(c.Key)}
		}
	case c.Action == ActionFiles && c.Value == ValueMore:
		if sess.fire(ctx, evFilesMore) {
			return []Prompt{awaitAttachmentsPrompt(c.Key)}
		}
	case c.Action == ActionFiles && c.Value == ValueDone:
		if sess.fire(ctx, evFilesDone) {
			return []Prompt{identityPrompt(c.Key)}
		}
	case c.Action == ActionIdentity && c.Value == ValueDetails:
		if sess.fire(ctx, evDetails) {
			return []Prompt{namePrompt()}
		}
	case c.Action == ActionIdentity && c.Value == ValueAnon:
		if sess.Step() == StepAwaitingIdentityDecision {
			return m.finalize(ctx, entry, sess, nil)
		}
	case c.Action == ActionRetry:
		switch {
		case sess.Step() == StepAwaitingIdentityDecision:
			return m.finalize(ctx, entry, sess, nil)
		case sess.Step() == StepAwaitingPhone && sess.Phone != "":
			return m.finalize(ctx, entry, sess, &domain.Identity{Name: sess.DisplayName, Phone: sess.Phone})
		}
	}
	return nil
}

func (m *Machine) attachment(ctx context.Context, entry *Entry[UserID, *Session], ev Event) []Prompt {
	sess, ok := entry.Get()
	if !ok || sess.Step() != StepAwaitingAttachments {
		return nil
	}
	prompt, ok := m.batcher.Add(ctx, AttachmentEvent{
		UserID:  sess.UserID,
		Key:     sess.PendingKey,
		ChatID:  ev.ChatID,
		BatchID: ev.BatchID,
		Ref:     ev.Attachment,
	})
	if !ok {
		return nil
	}
	return []Prompt{prompt}
}

// finalize сохраняет обращение. Слот обращения удерживается на время записи,
// чтобы догружающаяся группа файлов не добавилась в уже сохранённое обращение.
// При ошибке сессия и обращение остаются нетронутыми для повтора.
func (m *Machine) finalize(ctx context.Context, entry *Entry[UserID, *Session], sess *Session, identity *domain.Identity) []Prompt {
	pe := m.pending.Lock(sess.PendingKey)
	defer pe.Unlock()
	sub, ok := pe.Get()
	if !ok {
		return []Prompt{notFoundPrompt()}
	}

	id, err := m.finalizer.Finalize(ctx, int64(sess.UserID), sub.record(identity))
	if err != nil {
		m.log.Error().Err(err).Str("feedback_key", string(sub.Key)).Msg("conversation: не удалось сохранить обращение")
		return []Prompt{saveFailedPrompt(sess.PendingKey)}
	}

	sess.fire(ctx, evFinalize)
	pe.Delete()
	entry.Delete()
	return []Prompt{thanksPrompt(id)}
}
