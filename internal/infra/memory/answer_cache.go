package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// AnswerKeyLoader fetches a quiz's ordered answer key from the backing store.
type AnswerKeyLoader interface {
	LoadAnswerKey(ctx context.Context, quizID int64) ([]string, error)
}

// AnswerCache caches answer keys with TTL to avoid re-reading a quiz's
// questions on every submission.
type AnswerCache struct {
	loader AnswerKeyLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedKey
}

type cachedKey struct {
	key       []string
	expiresAt time.Time
}

func NewAnswerCache(loader AnswerKeyLoader, ttl time.Duration) *AnswerCache {
	return &AnswerCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedKey),
	}
}

func (c *AnswerCache) AnswerKey(ctx context.Context, quizID int64) ([]string, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.key, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(sfKey(quizID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.key, nil
		}
		c.mu.RUnlock()

		key, err := c.loader.LoadAnswerKey(ctx, quizID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[quizID] = cachedKey{
			key:       key,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *AnswerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func sfKey(quizID int64) string {
	return "answers:" + strconv.FormatInt(quizID, 10)
}
