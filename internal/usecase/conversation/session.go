package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"

	"feedback-bot/internal/domain"
)

// Step описывает шаг диалога.
type Step string

const (
	StepIdle                     Step = "idle"
	StepAwaitingBranch           Step = "awaiting_branch"
	StepAwaitingFeedbackText     Step = "awaiting_feedback_text"
	StepAwaitingAttachDecision   Step = "awaiting_attachment_decision"
	StepAwaitingAttachments      Step = "awaiting_attachments"
	StepAwaitingIdentityDecision Step = "awaiting_identity_decision"
	StepAwaitingName             Step = "awaiting_name"
	StepAwaitingPhone            Step = "awaiting_phone"
	StepFinalized                Step = "finalized"
)

const (
	evStart        = "start"
	evBranch       = "branch"
	evFeedbackText = "feedback_text"
	evAttachYes    = "attach_yes"
	evAttachNo     = "attach_no"
	evFilesMore    = "files_more"
	evFilesDone    = "files_done"
	evDetails      = "details"
	evName         = "name"
	evFinalize     = "finalize"
)

func src(steps ...Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, string(s))
	}
	return out
}

var transitions = fsm.Events{
	{Name: evStart, Src: src(StepIdle), Dst: string(StepAwaitingBranch)},
	{Name: evBranch, Src: src(StepAwaitingBranch), Dst: string(StepAwaitingFeedbackText)},
	{Name: evFeedbackText, Src: src(StepAwaitingFeedbackText), Dst: string(StepAwaitingAttachDecision)},
	{Name: evAttachYes, Src: src(StepAwaitingAttachDecision), Dst: string(StepAwaitingAttachments)},
	{Name: evAttachNo, Src: src(StepAwaitingAttachDecision), Dst: string(StepAwaitingIdentityDecision)},
	{Name: evFilesMore, Src: src(StepAwaitingAttachments), Dst: string(StepAwaitingAttachments)},
	{Name: evFilesDone, Src: src(StepAwaitingAttachments), Dst: string(StepAwaitingIdentityDecision)},
	{Name: evDetails, Src: src(StepAwaitingIdentityDecision), Dst: string(StepAwaitingName)},
	{Name: evName, Src: src(StepAwaitingName), Dst: string(StepAwaitingPhone)},
	{Name: evFinalize, Src: src(StepAwaitingIdentityDecision, StepAwaitingPhone), Dst: string(StepFinalized)},
}

// Session хранит прогресс пользователя в диалоге.
// Поля заполняются по мере прохождения шагов и не читаются раньше своего шага.
type Session struct {
	UserID       UserID
	ChatID       int64
	Branch       string
	FeedbackText string
	DisplayName  string
	Phone        string
	PendingKey   FeedbackKey
	StartedAt    time.Time

	flow *fsm.FSM
}

func newSession(userID UserID, chatID int64, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		ChatID:    chatID,
		StartedAt: now,
		flow:      fsm.NewFSM(string(StepIdle), transitions, fsm.Callbacks{}),
	}
}

// Step возвращает текущий шаг.
func (s *Session) Step() Step {
	return Step(s.flow.Current())
}

// fire выполняет переход. Переход в тот же шаг считается успешным.
func (s *Session) fire(ctx context.Context, event string) bool {
	if !s.flow.Can(event) {
		return false
	}
	err := s.flow.Event(ctx, event)
	if err == nil {
		return true
	}
	var same fsm.NoTransitionError
	return errors.As(err, &same)
}

// PendingSubmission содержит собранное обращение до решения об анонимности.
type PendingSubmission struct {
	Key         FeedbackKey
	UserID      UserID
	ChatID      int64
	Text        string
	Branch      string
	Attachments []domain.Attachment
	CreatedAt   time.Time
}

func (p *PendingSubmission) appendUnique(files []domain.Attachment) int {
	seen := make(map[string]struct{}, len(p.Attachments)+len(files))
	for _, a := range p.Attachments {
		seen[a.Path] = struct{}{}
	}
	added := 0
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		p.Attachments = append(p.Attachments, f)
		added++
	}
	return added
}

func (p *PendingSubmission) clone() PendingSubmission {
	cp := *p
	cp.Attachments = append([]domain.Attachment(nil), p.Attachments...)
	return cp
}

// record собирает запись для сохранения.
func (p *PendingSubmission) record(identity *domain.Identity) domain.FeedbackRecord {
	return domain.FeedbackRecord{
		Message:     p.Text,
		Branch:      p.Branch,
		Identity:    identity,
		Attachments: p.Attachments,
	}
}
