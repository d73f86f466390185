package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"feedback-bot/internal/domain"
)

// MemoryCache реализует domain.Cache в памяти процесса. Используется,
// когда REDIS_ADDR не задан и бот запущен в одном экземпляре.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemory создаёт кэш с периодической очисткой просроченных ключей.
func NewMemory(cleanup time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, cleanup)}
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *MemoryCache) Once(key string, ttl time.Duration, fn func() error) error {
	if err := c.items.Add(key, struct{}{}, ttl); err != nil {
		return domain.ErrAlreadyDone
	}
	if err := fn(); err != nil {
		c.items.Delete(key)
		return err
	}
	return nil
}
