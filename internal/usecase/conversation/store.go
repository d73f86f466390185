package conversation

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"feedback-bot/internal/domain"
)

// UserID идентифицирует пользователя Telegram.
type UserID int64

// FeedbackKey — непрозрачный токен незавершённого обращения, передаётся в callback-кнопках.
type FeedbackKey string

// NewFeedbackKey создаёт новый токен.
func NewFeedbackKey() FeedbackKey {
	return FeedbackKey(uuid.NewString())
}

type slot[V any] struct {
	mu    sync.Mutex
	refs  int
	value V
	ok    bool
}

// keyed хранит значения с блокировкой на уровне ключа. Общий мьютекс
// удерживается только на время поиска или удаления слота.
type keyed[K comparable, V any] struct {
	mu    sync.Mutex
	slots map[K]*slot[V]
	size  atomic.Int64
}

func newKeyed[K comparable, V any]() *keyed[K, V] {
	return &keyed[K, V]{slots: make(map[K]*slot[V])}
}

func (k *keyed[K, V]) lock(key K) *Entry[K, V] {
	k.mu.Lock()
	s, found := k.slots[key]
	if !found {
		s = &slot[V]{}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	s.mu.Lock()
	return &Entry[K, V]{store: k, key: key, slot: s}
}

func (k *keyed[K, V]) len() int {
	return int(k.size.Load())
}

// Entry даёт эксклюзивный доступ к значению по ключу до вызова Unlock.
type Entry[K comparable, V any] struct {
	store    *keyed[K, V]
	key      K
	slot     *slot[V]
	released bool
}

// Get возвращает значение, если оно есть.
func (e *Entry[K, V]) Get() (V, bool) {
	return e.slot.value, e.slot.ok
}

// Set сохраняет значение.
func (e *Entry[K, V]) Set(v V) {
	if !e.slot.ok {
		e.store.size.Add(1)
	}
	e.slot.value = v
	e.slot.ok = true
}

// Delete удаляет значение.
func (e *Entry[K, V]) Delete() {
	if e.slot.ok {
		e.store.size.Add(-1)
	}
	var zero V
	e.slot.value = zero
	e.slot.ok = false
}

// Unlock освобождает ключ. Пустой слот без ожидающих удаляется из карты.
func (e *Entry[K, V]) Unlock() {
	if e.released {
		return
	}
	e.released = true
	e.slot.mu.Unlock()

	k := e.store
	k.mu.Lock()
	e.slot.refs--
	if e.slot.refs == 0 && !e.slot.ok {
		delete(k.slots, e.key)
	}
	k.mu.Unlock()
}

// SessionStore хранит сессии по пользователю.
type SessionStore struct {
	items *keyed[UserID, *Session]
}

// NewSessionStore создаёт пустое хранилище сессий.
func NewSessionStore() *SessionStore {
	return &SessionStore{items: newKeyed[UserID, *Session]()}
}

// Lock захватывает сессию пользователя.
func (s *SessionStore) Lock(id UserID) *Entry[UserID, *Session] {
	return s.items.lock(id)
}

// Len возвращает число активных сессий.
func (s *SessionStore) Len() int {
	return s.items.len()
}

// PendingStore хранит незавершённые обращения по токену.
type PendingStore struct {
	items *keyed[FeedbackKey, *PendingSubmission]
}

// NewPendingStore создаёт пустое хранилище обращений.
func NewPendingStore() *PendingStore {
	return &PendingStore{items: newKeyed[FeedbackKey, *PendingSubmission]()}
}

// Lock захватывает обращение по токену.
func (p *PendingStore) Lock(key FeedbackKey) *Entry[FeedbackKey, *PendingSubmission] {
	return p.items.lock(key)
}

// Put сохраняет обращение.
func (p *PendingStore) Put(sub *PendingSubmission) {
	e := p.Lock(sub.Key)
	defer e.Unlock()
	e.Set(sub)
}

// Remove удаляет обращение.
func (p *PendingStore) Remove(key FeedbackKey) {
	e := p.Lock(key)
	defer e.Unlock()
	e.Delete()
}

// Exists сообщает, существует ли ещё обращение.
func (p *PendingStore) Exists(key FeedbackKey) bool {
	e := p.Lock(key)
	defer e.Unlock()
	_, ok := e.Get()
	return ok
}

// Snapshot возвращает копию обращения.
func (p *PendingStore) Snapshot(key FeedbackKey) (PendingSubmission, bool) {
	e := p.Lock(key)
	defer e.Unlock()
	sub, ok := e.Get()
	if !ok {
		return PendingSubmission{}, false
	}
	return sub.clone(), true
}

// AppendAttachments добавляет файлы, пропуская уже прикреплённые пути.
// Возвращает общее число файлов, число добавленных и признак существования обращения.
func (p *PendingStore) AppendAttachments(key FeedbackKey, files []domain.Attachment) (total, added int, ok bool) {
	e := p.Lock(key)
	defer e.Unlock()
	sub, ok := e.Get()
	if !ok {
		return 0, 0, false
	}
	added = sub.appendUnique(files)
	return len(sub.Attachments), added, true
}

// Len возвращает число незавершённых обращений.
func (p *PendingStore) Len() int {
	return p.items.len()
}
