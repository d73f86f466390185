package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/cache"
	"feedback-bot/internal/usecase/conversation"
)

func privateMessage(userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
	}
}

func TestToEventCommands(t *testing.T) {
	cases := []struct {
		text  string
		kind  conversation.EventKind
		greet bool
	}{
		{text: "/start", kind: conversation.EventStart, greet: true},
		{text: "/start@feedback_bot", kind: conversation.EventStart, greet: true},
		{text: "/new", kind: conversation.EventStart},
		{text: "/cancel", kind: conversation.EventCancel},
		{text: "Broken AC", kind: conversation.EventText},
		{text: "/newest", kind: conversation.EventText},
	}
	for _, tc := range cases {
		msg := privateMessage(5)
		msg.Text = tc.text
		ev, ok := ToEvent(tgbotapi.Update{Message: msg})
		require.True(t, ok, tc.text)
		require.Equal(t, tc.kind, ev.Kind, tc.text)
		require.Equal(t, tc.greet, ev.Greet, tc.text)
		require.Equal(t, conversation.UserID(5), ev.UserID)
	}
}

func TestToEventAttachments(t *testing.T) {
	msg := privateMessage(5)
	msg.MediaGroupID = "album"
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", FileUniqueID: "u-small"},
		{FileID: "large", FileUniqueID: "u-large"},
	}
	ev, ok := ToEvent(tgbotapi.Update{Message: msg})
	require.True(t, ok)
	require.Equal(t, conversation.EventAttachment, ev.Kind)
	require.Equal(t, "album", ev.BatchID)
	require.Equal(t, domain.AttachmentRef{FileID: "large", UniqueID: "u-large", Kind: domain.AttachmentPhoto}, ev.Attachment)

	msg = privateMessage(5)
	msg.Document = &tgbotapi.Document{FileID: "doc", FileUniqueID: "u-doc", FileName: "act.pdf"}
	ev, ok = ToEvent(tgbotapi.Update{Message: msg})
	require.True(t, ok)
	require.Empty(t, ev.BatchID)
	require.Equal(t, domain.AttachmentDocument, ev.Attachment.Kind)
	require.Equal(t, "act.pdf", ev.Attachment.FileName)
}

func TestToEventContactAndCallback(t *testing.T) {
	msg := privateMessage(5)
	msg.Contact = &tgbotapi.Contact{PhoneNumber: "998901234567"}
	ev, ok := ToEvent(tgbotapi.Update{Message: msg})
	require.True(t, ok)
	require.Equal(t, conversation.EventContact, ev.Kind)
	require.Equal(t, "+998901234567", ev.Text)

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 5},
		Message: privateMessage(5),
		Data:    "attach:no:key-1",
	}
	ev, ok = ToEvent(tgbotapi.Update{CallbackQuery: cb})
	require.True(t, ok)
	require.Equal(t, conversation.EventChoice, ev.Kind)
	require.Equal(t, conversation.FeedbackKey("key-1"), ev.Choice.Key)

	cb.Data = "digest_all"
	_, ok = ToEvent(tgbotapi.Update{CallbackQuery: cb})
	require.False(t, ok)
}

func TestToEventSkipsGroupChats(t *testing.T) {
	msg := privateMessage(5)
	msg.Chat.Type = "group"
	msg.Text = "hi"
	_, ok := ToEvent(tgbotapi.Update{Message: msg})
	require.False(t, ok)
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.MessageConfig, 0, len(f.sent))
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestReplierMarkup(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplier(sender, zerolog.Nop())
	ctx := context.Background()

	r.Reply(ctx, 1, conversation.Prompt{
		Text:    "выберите",
		Options: [][]conversation.Option{{{Label: "Да", Data: "attach:yes:k"}, {Label: "Нет", Data: "attach:no:k"}}},
	})
	r.Reply(ctx, 1, conversation.Prompt{Text: "телефон", RequestContact: true})
	r.Reply(ctx, 1, conversation.Prompt{Text: "спасибо", RemoveKeyboard: true})

	msgs := sender.messages()
	require.Len(t, msgs, 3)

	inline, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, inline.InlineKeyboard[0], 2)
	require.Equal(t, "attach:no:k", *inline.InlineKeyboard[0][1].CallbackData)

	contact, ok := msgs[1].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.True(t, contact.Keyboard[0][0].RequestContact)

	_, ok = msgs[2].ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	require.True(t, ok)
}

type recordingConversation struct {
	mu     sync.Mutex
	events []conversation.Event
}

func (r *recordingConversation) Handle(_ context.Context, ev conversation.Event) []conversation.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return []conversation.Prompt{{Text: "ok"}}
}

func TestHandlerDispatchesAndReplies(t *testing.T) {
	sender := &fakeSender{}
	conv := &recordingConversation{}
	dispatcher := NewDispatcher()
	h := NewHandler(conv, NewReplier(sender, zerolog.Nop()), dispatcher, nil, zerolog.Nop())

	start := privateMessage(9)
	start.Text = "/start"
	h.HandleUpdate(context.Background(), tgbotapi.Update{Message: start})

	help := privateMessage(9)
	help.Text = "/help"
	h.HandleUpdate(context.Background(), tgbotapi.Update{Message: help})

	h.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb-1", From: &tgbotapi.User{ID: 9}, Message: privateMessage(9), Data: "files:done:k",
	}})
	dispatcher.Stop()

	require.Len(t, conv.events, 2)
	require.Equal(t, conversation.EventStart, conv.events[0].Kind)
	require.Equal(t, conversation.EventChoice, conv.events[1].Kind)
	require.Len(t, sender.messages(), 3)
	require.Len(t, sender.requests, 1)
}

func TestHandlerSkipsRedeliveredUpdate(t *testing.T) {
	sender := &fakeSender{}
	conv := &recordingConversation{}
	dispatcher := NewDispatcher()
	h := NewHandler(conv, NewReplier(sender, zerolog.Nop()), dispatcher, cache.NewMemory(time.Minute), zerolog.Nop())

	msg := privateMessage(3)
	msg.Text = "/new"
	upd := tgbotapi.Update{UpdateID: 77, Message: msg}
	h.HandleUpdate(context.Background(), upd)
	h.HandleUpdate(context.Background(), upd)
	dispatcher.Stop()

	require.Len(t, conv.events, 1)
}

func TestDispatcherKeepsPerUserOrder(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	got := map[int64][]int{}

	for i := 0; i < 50; i++ {
		for _, user := range []int64{1, 2, 3} {
			i, user := i, user
			require.True(t, d.Submit(user, func() {
				if i%10 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				got[user] = append(got[user], i)
				mu.Unlock()
			}))
		}
	}
	d.Stop()

	for _, user := range []int64{1, 2, 3} {
		require.Len(t, got[user], 50)
		for i, v := range got[user] {
			require.Equal(t, i, v)
		}
	}
	require.False(t, d.Submit(1, func() {}))
}
