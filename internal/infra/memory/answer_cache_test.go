package memory

import (
	"context"
	"testing"
	"time"

	"lms-quiz-service/internal/domain"
)

func TestAnswerCacheCaches(t *testing.T) {
	loader := &countingLoader{keys: map[int64][]string{
		7: {"A", "B", "C", "D", "E"},
	}}
	cache := NewAnswerCache(loader, time.Minute)

	key, err := cache.AnswerKey(context.Background(), 7)
	if err != nil {
		t.Fatalf("answer key: %v", err)
	}
	if len(key) != 5 || key[0] != "A" || key[4] != "E" {
		t.Fatalf("unexpected key: %v", key)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.AnswerKey(context.Background(), 7); err != nil {
		t.Fatalf("answer key 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestAnswerCacheMissPropagates(t *testing.T) {
	cache := NewAnswerCache(&countingLoader{keys: map[int64][]string{}}, time.Minute)

	if _, err := cache.AnswerKey(context.Background(), 99); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	keys  map[int64][]string
	calls int
}

func (l *countingLoader) LoadAnswerKey(_ context.Context, quizID int64) ([]string, error) {
	l.calls++
	key, ok := l.keys[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return key, nil
}
