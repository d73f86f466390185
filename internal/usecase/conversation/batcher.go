package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

// DefaultBatchDelay — сколько ждать остальные файлы альбома после первого.
const DefaultBatchDelay = 1500 * time.Millisecond

const batchProcessTimeout = 2 * time.Minute

type batchState int

const (
	batchCollecting batchState = iota
	batchProcessing
	batchDone
)

// AttachmentEvent — входящий файл, который нужно прикрепить к обращению.
type AttachmentEvent struct {
	UserID  UserID
	Key     FeedbackKey
	ChatID  int64
	BatchID string
	Ref     domain.AttachmentRef
}

type attachmentTarget interface {
	Exists(key FeedbackKey) bool
	AppendAttachments(key FeedbackKey, files []domain.Attachment) (total, added int, ok bool)
}

type batch struct {
	id     string
	state  batchState
	userID UserID
	key    FeedbackKey
	chatID int64
	refs   []domain.AttachmentRef
	seen   map[string]struct{}
}

// Batcher собирает файлы альбома в одну группу и обрабатывает её ровно один раз.
type Batcher struct {
	files    domain.AttachmentStore
	target   attachmentTarget
	replier  Replier
	delay    time.Duration
	schedule func(time.Duration, func())
	log      zerolog.Logger

	// mu защищает только карту и поля групп, сетевые вызовы идут без него.
	mu      sync.Mutex
	batches map[string]*batch
}

// NewBatcher создаёт группировщик вложений.
func NewBatcher(files domain.AttachmentStore, target *PendingStore, replier Replier, delay time.Duration, log zerolog.Logger) *Batcher {
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	return &Batcher{
		files:   files,
		target:  target,
		replier: replier,
		delay:   delay,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		log:     log,
		batches: make(map[string]*batch),
	}
}

// Add принимает файл. Одиночный файл обрабатывается сразу и возвращает подсказку.
// Файл из альбома откладывается до срабатывания таймера группы, подсказки нет.
func (b *Batcher) Add(ctx context.Context, ev AttachmentEvent) (Prompt, bool) {
	if ev.BatchID == "" {
		return b.single(ctx, ev), true
	}

	b.mu.Lock()
	bt, ok := b.batches[ev.BatchID]
	start := false
	if !ok || bt.state != batchCollecting {
		bt = &batch{id: ev.BatchID, userID: ev.UserID, key: ev.Key, seen: make(map[string]struct{})}
		b.batches[ev.BatchID] = bt
		start = true
	}
	bt.chatID = ev.ChatID
	ref := refKey(ev.Ref)
	if _, dup := bt.seen[ref]; !dup {
		bt.seen[ref] = struct{}{}
		bt.refs = append(bt.refs, ev.Ref)
	}
	b.mu.Unlock()

	if start {
		b.schedule(b.delay, func() { b.fire(bt) })
	}
	return Prompt{}, false
}

func (b *Batcher) single(ctx context.Context, ev AttachmentEvent) Prompt {
	file, err := b.files.ResolveAndStore(ctx, ev.Ref)
	if err != nil {
		metrics.AttachmentErrors.Inc()
		b.log.Error().Err(err).Str("file_unique_id", ev.Ref.UniqueID).Msg("batcher: не удалось сохранить файл")
		return attachmentFailedPrompt(ev.Key)
	}
	metrics.IncAttachmentStored(string(file.Kind))
	total, _, ok := b.target.AppendAttachments(ev.Key, []domain.Attachment{file})
	if !ok {
		return notFoundPrompt()
	}
	return filesReceivedPrompt(ev.Key, total)
}

// fire обрабатывает группу. Повторный вызов для той же группы ничего не делает.
func (b *Batcher) fire(bt *batch) {
	b.mu.Lock()
	if bt.state != batchCollecting {
		b.mu.Unlock()
		return
	}
	bt.state = batchProcessing
	refs := append([]domain.AttachmentRef(nil), bt.refs...)
	key, chatID := bt.key, bt.chatID
	b.mu.Unlock()
	defer b.finish(bt)

	logger := b.log.With().
		Str("batch", bt.id).
		Int64("user_id", int64(bt.userID)).
		Str("feedback_key", string(key)).
		Int("files", len(refs)).
		Logger()
	if !b.target.Exists(key) {
		metrics.IncBatch("stale")
		logger.Info().Strs("file_unique_ids", uniqueIDs(refs)).Msg("batcher: обращение уже отправлено или отменено, файлы группы не приложены")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchProcessTimeout)
	defer cancel()

	stored := make([]domain.Attachment, 0, len(refs))
	for _, ref := range refs {
		file, err := b.files.ResolveAndStore(ctx, ref)
		if err != nil {
			metrics.AttachmentErrors.Inc()
			logger.Error().Err(err).Str("file_unique_id", ref.UniqueID).Msg("batcher: не удалось сохранить файл из группы")
			continue
		}
		metrics.IncAttachmentStored(string(file.Kind))
		stored = append(stored, file)
	}

	total, _, ok := b.target.AppendAttachments(key, stored)
	if !ok {
		metrics.IncBatch("stale")
		logger.Info().Strs("file_unique_ids", uniqueIDs(refs)).Msg("batcher: обращение удалено во время загрузки, файлы группы не приложены")
		return
	}
	if len(stored) == 0 {
		metrics.IncBatch("empty")
		b.replier.Reply(ctx, chatID, attachmentFailedPrompt(key))
		return
	}
	metrics.IncBatch("processed")
	b.replier.Reply(ctx, chatID, filesReceivedPrompt(key, total))
}

func (b *Batcher) finish(bt *batch) {
	b.mu.Lock()
	if cur, ok := b.batches[bt.id]; ok && cur == bt {
		delete(b.batches, bt.id)
	}
	bt.state = batchDone
	b.mu.Unlock()
}

// Len возвращает число групп, ожидающих обработки.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

func uniqueIDs(refs []domain.AttachmentRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.UniqueID)
	}
	return ids
}

func refKey(ref domain.AttachmentRef) string {
	if ref.UniqueID != "" {
		return ref.UniqueID
	}
	return ref.FileID
}
