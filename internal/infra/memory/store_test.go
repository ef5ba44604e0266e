package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"lms-quiz-service/internal/domain"
)

func seedQuestions(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.CreateQuestion(context.Background(), domain.Question{
			ID:            int64(i + 1),
			CourseID:      1,
			Type:          domain.QuestionTypeMCQ,
			Text:          "q",
			CorrectAnswer: "A",
		})
		if err != nil {
			t.Fatalf("seed question %d: %v", i+1, err)
		}
	}
}

func candidateIDs(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func TestCreateWithClaimsNeverDoubleClaims(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedQuestions(t, store, 12)

	// 12 questions support exactly two quizzes of five; the third racer
	// must fail without claiming anything.
	var wg sync.WaitGroup
	results := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.CreateWithClaims(ctx, domain.Quiz{CourseID: 1, Title: "quiz"}, candidateIDs(12), 5)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientQuestions) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Fatalf("expected exactly 2 quizzes created, got %d", succeeded)
	}

	// Every claimed question belongs to exactly one quiz.
	questions, err := store.QuestionsByCourse(ctx, 1)
	if err != nil {
		t.Fatalf("questions by course: %v", err)
	}
	claims := map[int64]int{}
	for _, q := range questions {
		if q.QuizID != nil {
			claims[*q.QuizID]++
		}
	}
	if len(claims) != 2 {
		t.Fatalf("expected claims against 2 quizzes, got %v", claims)
	}
	for quizID, count := range claims {
		if count != 5 {
			t.Fatalf("quiz %d holds %d questions, want 5", quizID, count)
		}
	}
}

func TestCreateWithClaimsRollsBackOnShortfall(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedQuestions(t, store, 3)

	_, err := store.CreateWithClaims(ctx, domain.Quiz{CourseID: 1}, candidateIDs(3), 5)
	if !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected insufficient questions, got %v", err)
	}
	unclaimed, err := store.QuestionsByCourseAndType(ctx, 1, domain.QuestionTypeMCQ, true)
	if err != nil {
		t.Fatalf("unclaimed pool: %v", err)
	}
	if len(unclaimed) != 3 {
		t.Fatalf("expected full rollback, %d unclaimed", len(unclaimed))
	}
}

func TestCreateGradingEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	grading := domain.Grading{QuizID: 1, StudentID: 201, Grade: 4}
	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.CreateGrading(ctx, grading)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrDuplicateSubmission) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 grading recorded, got %d", succeeded)
	}

	grade, ok, err := store.GradeFor(ctx, 1, 201)
	if err != nil || !ok || grade != 4 {
		t.Fatalf("grade lookup: grade=%d ok=%v err=%v", grade, ok, err)
	}
}

func TestUpsertQuestionPreservesClaim(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedQuestions(t, store, 5)

	quizID, err := store.CreateWithClaims(ctx, domain.Quiz{CourseID: 1}, candidateIDs(5), 5)
	if err != nil {
		t.Fatalf("create with claims: %v", err)
	}

	err = store.UpsertQuestion(ctx, domain.Question{
		ID:            1,
		CourseID:      1,
		Type:          domain.QuestionTypeMCQ,
		Text:          "rewritten",
		CorrectAnswer: "B",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	questions, err := store.QuestionsByQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("questions by quiz: %v", err)
	}
	if len(questions) != 5 {
		t.Fatalf("expected the claim to survive the rewrite, got %d questions", len(questions))
	}
	if questions[0].Text != "rewritten" || questions[0].CorrectAnswer != "B" {
		t.Fatalf("expected content overwritten, got %+v", questions[0])
	}
}
