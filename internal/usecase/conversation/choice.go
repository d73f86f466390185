package conversation

import "strings"

// Action описывает нажатую кнопку.
type Action string

const (
	ActionBranch   Action = "branch"
	ActionAttach   Action = "attach"
	ActionFiles    Action = "files"
	ActionIdentity Action = "identity"
	ActionRetry    Action = "retry"
)

const (
	ValueYes     = "yes"
	ValueNo      = "no"
	ValueDone    = "done"
	ValueMore    = "more"
	ValueAnon    = "anon"
	ValueDetails = "details"
	ValueSubmit  = "submit"
)

// Choice — разобранные данные callback-кнопки.
type Choice struct {
	Action Action
	Value  string
	Key    FeedbackKey
}

// Data кодирует выбор в callback data: action:value:key.
// Для токена-uuid строка укладывается в лимит Telegram в 64 байта.
func (c Choice) Data() string {
	return string(c.Action) + ":" + c.Value + ":" + string(c.Key)
}

// ParseChoice разбирает callback data.
func ParseChoice(data string) (Choice, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return Choice{}, false
	}
	c := Choice{Action: Action(parts[0]), Value: parts[1], Key: FeedbackKey(parts[2])}
	switch c.Action {
	case ActionBranch:
		return c, c.Value != ""
	case ActionAttach, ActionFiles, ActionIdentity, ActionRetry:
		return c, c.Key != ""
	default:
		return Choice{}, false
	}
}
