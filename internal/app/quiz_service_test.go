package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
	"lms-quiz-service/internal/infra/memory"
)

var (
	instructor      = &domain.Principal{UserID: 100, Role: domain.RoleInstructor}
	otherInstructor = &domain.Principal{UserID: 101, Role: domain.RoleInstructor}
	studentA        = &domain.Principal{UserID: 201, Role: domain.RoleStudent}
	studentB        = &domain.Principal{UserID: 202, Role: domain.RoleStudent}
	outsider        = &domain.Principal{UserID: 301, Role: domain.RoleStudent}
)

func TestCreateQuizClaimsFiveDistinctQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)

	quizID, err := f.service.CreateQuiz(ctx, instructor, 1, domain.QuestionTypeMCQ)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	questions, err := f.store.QuestionsByQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("quiz questions: %v", err)
	}
	if len(questions) != domain.QuestionsPerQuiz {
		t.Fatalf("expected %d questions, got %d", domain.QuestionsPerQuiz, len(questions))
	}
	seen := map[int64]bool{}
	for _, q := range questions {
		if seen[q.ID] {
			t.Fatalf("question %d claimed twice", q.ID)
		}
		seen[q.ID] = true
		if q.Type != domain.QuestionTypeMCQ || q.CourseID != 1 {
			t.Fatalf("unexpected question in quiz: %+v", q)
		}
	}

	quiz, err := f.store.GetQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Title != "quiz1" || !quiz.Randomized || quiz.QuestionCount != domain.QuestionsPerQuiz {
		t.Fatalf("unexpected quiz record: %+v", quiz)
	}

	// Both enrolled students were told about the new quiz.
	if got := f.notifier.countFor(201); got != 1 {
		t.Fatalf("expected 1 notification for student 201, got %d", got)
	}
	if got := f.notifier.countFor(202); got != 1 {
		t.Fatalf("expected 1 notification for student 202, got %d", got)
	}

	// The pool is exhausted; claims are permanent.
	if _, err := f.service.CreateQuiz(ctx, instructor, 1, domain.QuestionTypeMCQ); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected insufficient questions, got %v", err)
	}
}

func TestCreateQuizInsufficientPoolClaimsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(4)

	if _, err := f.service.CreateQuiz(ctx, instructor, 1, domain.QuestionTypeMCQ); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected insufficient questions, got %v", err)
	}
	unclaimed, _ := f.store.QuestionsByCourseAndType(ctx, 1, domain.QuestionTypeMCQ, true)
	if len(unclaimed) != 4 {
		t.Fatalf("expected no partial claims, got %d unclaimed", len(unclaimed))
	}
}

func TestCreateQuizInvalidType(t *testing.T) {
	f := newFixture()
	if _, err := f.service.CreateQuiz(context.Background(), instructor, 1, 9); !errors.Is(err, domain.ErrInvalidQuizType) {
		t.Fatalf("expected invalid quiz type, got %v", err)
	}
}

func TestCreateQuizRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)

	_, err := f.service.CreateQuiz(ctx, otherInstructor, 1, domain.QuestionTypeMCQ)
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Reason != domain.DenyNotOwner {
		t.Fatalf("expected NotOwner denial, got %v", err)
	}

	// Nothing changed: no quiz exists and no question was claimed.
	if count, _ := f.store.CountQuizzes(ctx); count != 0 {
		t.Fatalf("expected no quizzes, got %d", count)
	}
	unclaimed, _ := f.store.QuestionsByCourseAndType(ctx, 1, domain.QuestionTypeMCQ, true)
	if len(unclaimed) != 5 {
		t.Fatalf("expected 5 unclaimed, got %d", len(unclaimed))
	}

	if _, err := f.service.CreateQuiz(ctx, studentA, 1, domain.QuestionTypeMCQ); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("expected role denial for student, got %v", err)
	}
}

func TestSubmitGradesAndRecordsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	grade, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "x", "y"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if grade != 3 {
		t.Fatalf("expected grade 3, got %d", grade)
	}
	if got := f.notifier.lastFor(201); got != "Quiz 1 has been graded" {
		t.Fatalf("unexpected grading notification: %q", got)
	}

	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "D", "E"}); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}

	// The recorded grade is the first one.
	got, err := f.service.Feedback(ctx, studentA, quizID, 201)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected recorded grade 3, got %d", got)
	}
}

func TestSubmitScoringIsExactMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	// Case and whitespace are not normalized.
	grade, err := f.service.Submit(ctx, studentA, quizID, []string{"a", " B", "C", "D", "E"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if grade != 3 {
		t.Fatalf("expected only exact matches to count, got %d", grade)
	}
}

func TestSubmitMalformedAnswerList(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B"}); !errors.Is(err, domain.ErrMalformedSubmission) {
		t.Fatalf("expected malformed submission, got %v", err)
	}
	// Nothing was persisted; the student may still submit.
	if _, err := f.service.Feedback(ctx, studentA, quizID, 201); !errors.Is(err, domain.ErrGradingNotAvailable) {
		t.Fatalf("expected no grading recorded, got %v", err)
	}
}

func TestSubmitClosedQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	f.clock.advance(16 * time.Minute)
	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "D", "E"}); !errors.Is(err, domain.ErrQuizClosed) {
		t.Fatalf("expected quiz closed, got %v", err)
	}
}

func TestSubmitAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	answers := []string{"A", "B", "C", "D", "E"}
	_, err := f.service.Submit(ctx, outsider, quizID, answers)
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Reason != domain.DenyNotEnrolled {
		t.Fatalf("expected NotEnrolled denial, got %v", err)
	}

	if _, err := f.service.Submit(ctx, instructor, quizID, answers); !errors.Is(err, domain.ErrUnauthorizedAccess) {
		t.Fatalf("expected instructors barred from submitting, got %v", err)
	}
}

func TestQuizQuestionsWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	f.clock.advance(14 * time.Minute)
	if _, err := f.service.QuizQuestions(ctx, studentA, quizID); err != nil {
		t.Fatalf("open quiz fetch: %v", err)
	}

	f.clock.advance(2 * time.Minute)
	if _, err := f.service.QuizQuestions(ctx, studentA, quizID); !errors.Is(err, domain.ErrQuizClosed) {
		t.Fatalf("expected quiz closed at +16m, got %v", err)
	}
	// The owning instructor can still review the questions.
	if _, err := f.service.QuizQuestions(ctx, instructor, quizID); err != nil {
		t.Fatalf("instructor fetch after close: %v", err)
	}
}

func TestQuizQuestionsAfterOwnSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "D", "E"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.QuizQuestions(ctx, studentA, quizID); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission on re-fetch, got %v", err)
	}
	// Another enrolled student is unaffected.
	if _, err := f.service.QuizQuestions(ctx, studentB, quizID); err != nil {
		t.Fatalf("other student fetch: %v", err)
	}
}

func TestActiveQuizzesRemainingMinutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	f.clock.advance(14 * time.Minute)
	report, err := f.service.ActiveQuizzes(ctx, studentA, 1)
	if err != nil {
		t.Fatalf("active quizzes: %v", err)
	}
	if len(report.Open) != 1 || report.Open[0].QuizID != quizID {
		t.Fatalf("expected quiz %d open, got %+v", quizID, report.Open)
	}
	if report.Open[0].MinutesLeft != 1 {
		t.Fatalf("expected 1 minute left (rounded up), got %d", report.Open[0].MinutesLeft)
	}

	f.clock.advance(6 * time.Minute)
	report, err = f.service.ActiveQuizzes(ctx, studentA, 1)
	if err != nil {
		t.Fatalf("active quizzes: %v", err)
	}
	if len(report.Open) != 0 {
		t.Fatalf("expected no open quizzes, got %+v", report.Open)
	}
	if report.TotalQuizzes != 1 {
		t.Fatalf("expected historical count 1, got %d", report.TotalQuizzes)
	}
}

func TestQuestionBankLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.service.QuestionBank(ctx, instructor, 1); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected empty bank condition, got %v", err)
	}

	draft := domain.QuestionDraft{
		ID: 10, CourseID: 1, Type: domain.QuestionTypeTrueFalse,
		Text: "The sky is green", Options: []string{"true", "false"}, CorrectAnswer: "false",
	}
	if err := f.service.AddQuestion(ctx, instructor, draft); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if err := f.service.AddQuestion(ctx, instructor, draft); !errors.Is(err, domain.ErrDuplicateQuestion) {
		t.Fatalf("expected duplicate question, got %v", err)
	}

	// Bank creation upserts: overwrite id 10, create id 11.
	err := f.service.CreateQuestionBank(ctx, instructor, 1, []domain.QuestionDraft{
		{ID: 10, Type: domain.QuestionTypeTrueFalse, Text: "The sky is blue", Options: []string{"true", "false"}, CorrectAnswer: "true"},
		{ID: 11, Type: domain.QuestionTypeShortAnswer, Text: "Name the capital of France", CorrectAnswer: "Paris"},
	})
	if err != nil {
		t.Fatalf("create question bank: %v", err)
	}

	bank, err := f.service.QuestionBank(ctx, instructor, 1)
	if err != nil {
		t.Fatalf("question bank: %v", err)
	}
	if len(bank) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(bank))
	}
	if bank[0].ID != 10 || bank[0].Text != "The sky is blue" || bank[0].CorrectAnswer != "true" {
		t.Fatalf("expected overwritten question, got %+v", bank[0])
	}

	if err := f.service.CreateQuestionBank(ctx, studentA, 1, nil); !errors.Is(err, domain.ErrUnauthorizedAccess) {
		t.Fatalf("expected feature restriction for students, got %v", err)
	}
	if _, err := f.service.QuestionBank(ctx, studentA, 1); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("expected denial for student bank view, got %v", err)
	}
}

func TestFeedbackVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "D", "E"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if grade, err := f.service.Feedback(ctx, studentA, quizID, 201); err != nil || grade != 5 {
		t.Fatalf("student reading own feedback: grade=%d err=%v", grade, err)
	}
	if grade, err := f.service.Feedback(ctx, instructor, quizID, 201); err != nil || grade != 5 {
		t.Fatalf("owner reading feedback: grade=%d err=%v", grade, err)
	}

	_, err := f.service.Feedback(ctx, studentB, quizID, 201)
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Reason != domain.DenyNotSelf {
		t.Fatalf("expected NotSelf denial, got %v", err)
	}

	if _, err := f.service.Feedback(ctx, instructor, quizID, 202); !errors.Is(err, domain.ErrGradingNotAvailable) {
		t.Fatalf("expected grading not available, got %v", err)
	}
}

func TestGradesListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMCQPool(5)
	quizID := f.mustCreateQuiz(t)

	if _, err := f.service.Submit(ctx, studentA, quizID, []string{"A", "B", "C", "D", "E"}); err != nil {
		t.Fatalf("submit A: %v", err)
	}
	if _, err := f.service.Submit(ctx, studentB, quizID, []string{"A", "x", "x", "x", "x"}); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	grades, err := f.service.Grades(ctx, instructor, quizID)
	if err != nil {
		t.Fatalf("grades: %v", err)
	}
	if len(grades) != 2 {
		t.Fatalf("expected 2 grades, got %d", len(grades))
	}
	if grades[0].StudentID != 201 || grades[0].Grade != 5 || grades[1].StudentID != 202 || grades[1].Grade != 1 {
		t.Fatalf("unexpected grades: %+v", grades)
	}

	if _, err := f.service.Grades(ctx, otherInstructor, quizID); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("expected denial for non-owner, got %v", err)
	}
	if _, err := f.service.Grades(ctx, studentA, quizID); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("expected denial for student, got %v", err)
	}
}

type fixture struct {
	service  *app.QuizService
	store    *memory.Store
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture() *fixture {
	store := memory.NewStore()
	store.PutCourse(domain.Course{ID: 1, Name: "Databases", InstructorID: 100})
	store.PutEnrollment(201, 1)
	store.PutEnrollment(202, 1)

	clock := &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	service := app.NewQuizServiceWithClock(app.Dependencies{
		Courses:     store,
		Questions:   store,
		Quizzes:     store,
		Gradings:    store,
		Reports:     store,
		Enrollments: store,
		Notifier:    notifier,
		AnswerKeys:  memory.NewAnswerCache(app.NewAnswerKeySource(store), time.Minute),
	}, clock.now)
	return &fixture{service: service, store: store, clock: clock, notifier: notifier}
}

// seedMCQPool stores n unclaimed MCQ questions whose correct answers are
// "A", "B", "C", ... in question-id order.
func (f *fixture) seedMCQPool(n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		answer := string(rune('A' + i))
		_ = f.store.CreateQuestion(ctx, domain.Question{
			ID:            int64(i + 1),
			CourseID:      1,
			Type:          domain.QuestionTypeMCQ,
			Text:          "question " + answer,
			Options:       []string{"A", "B", "C", "D", "E"},
			CorrectAnswer: answer,
		})
	}
}

func (f *fixture) mustCreateQuiz(t *testing.T) int64 {
	t.Helper()
	quizID, err := f.service.CreateQuiz(context.Background(), instructor, 1, domain.QuestionTypeMCQ)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quizID
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[int64][]string)
	}
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func (n *recordingNotifier) countFor(userID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages[userID])
}

func (n *recordingNotifier) lastFor(userID int64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.messages[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}
