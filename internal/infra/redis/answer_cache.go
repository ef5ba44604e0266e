package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AnswerKeyLoader fetches a quiz's ordered answer key from the backing store.
type AnswerKeyLoader interface {
	LoadAnswerKey(ctx context.Context, quizID int64) ([]string, error)
}

// AnswerCache caches answer keys in Redis (hash per quiz) and falls back to a
// loader on cache miss. Keys are stored as:
// HSET quiz:{quizID}:answers {position} {correctAnswer}
type AnswerCache struct {
	client *redis.Client
	loader AnswerKeyLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewAnswerCache(client *redis.Client, loader AnswerKeyLoader, ttl time.Duration) *AnswerCache {
	return &AnswerCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnswerCache) AnswerKey(ctx context.Context, quizID int64) ([]string, error) {
	key := c.answersKey(quizID)

	cached, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return orderedKey(cached), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return orderedKey(cached), nil
		}

		answers, err := c.loader.LoadAnswerKey(ctx, quizID)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for i, answer := range answers {
			pipe.HSet(ctx, key, strconv.Itoa(i), answer)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return answers, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *AnswerCache) answersKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":answers"
}

func orderedKey(cached map[string]string) []string {
	positions := make([]int, 0, len(cached))
	for pos := range cached {
		if i, err := strconv.Atoi(pos); err == nil {
			positions = append(positions, i)
		}
	}
	sort.Ints(positions)
	key := make([]string, 0, len(positions))
	for _, i := range positions {
		key = append(key, cached[strconv.Itoa(i)])
	}
	return key
}

func (c *AnswerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
