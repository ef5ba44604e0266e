package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"lms-quiz-service/internal/domain"
)

// CourseRepository resolves courses; course CRUD itself lives outside the core.
type CourseRepository interface {
	GetCourse(ctx context.Context, id int64) (domain.Course, error)
}

// QuestionRepository owns question records and filtered pool lookups.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q domain.Question) error
	UpsertQuestion(ctx context.Context, q domain.Question) error
	QuestionsByCourse(ctx context.Context, courseID int64) ([]domain.Question, error)
	// QuestionsByCourseAndType returns the matching pool; with unclaimedOnly it
	// narrows to questions not yet assigned to any quiz.
	QuestionsByCourseAndType(ctx context.Context, courseID int64, qt domain.QuestionType, unclaimedOnly bool) ([]domain.Question, error)
	// QuestionsByQuiz returns a quiz's questions in stable (id ascending) order.
	QuestionsByQuiz(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// QuizRepository persists quizzes and performs the atomic claim of their questions.
type QuizRepository interface {
	GetQuiz(ctx context.Context, id int64) (domain.Quiz, error)
	QuizzesByCourse(ctx context.Context, courseID int64) ([]domain.Quiz, error)
	CountQuizzes(ctx context.Context) (int, error)
	// CreateWithClaims persists the quiz and claims questions from candidateIDs
	// (in order) until need succeed, as one atomic unit. A candidate already
	// claimed by a concurrent call is skipped, not stolen; if the candidates
	// run out before need claims succeed, nothing is persisted and
	// domain.ErrInsufficientQuestions is returned.
	CreateWithClaims(ctx context.Context, quiz domain.Quiz, candidateIDs []int64, need int) (int64, error)
}

// GradingRepository is the write side of grade records. The storage layer
// enforces uniqueness on (quiz, student); CreateGrading surfaces a violation
// as domain.ErrDuplicateSubmission.
type GradingRepository interface {
	CreateGrading(ctx context.Context, g domain.Grading) error
	HasGrading(ctx context.Context, quizID, studentID int64) (bool, error)
}

// GradeReader is the read side used by feedback and reporting.
type GradeReader interface {
	GradeFor(ctx context.Context, quizID, studentID int64) (int, bool, error)
	GradesByQuiz(ctx context.Context, quizID int64) ([]domain.StudentGrade, error)
}

// EnrollmentRepository is the external membership oracle.
type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
	EnrolledStudents(ctx context.Context, courseID int64) ([]int64, error)
}

// Notifier delivers best-effort user notifications; failures are swallowed.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string) error
}

// AnswerKeyProvider supplies a quiz's ordered correct answers for grading.
type AnswerKeyProvider interface {
	AnswerKey(ctx context.Context, quizID int64) ([]string, error)
}

// Dependencies bundles the ports the quiz core consumes.
type Dependencies struct {
	Courses     CourseRepository
	Questions   QuestionRepository
	Quizzes     QuizRepository
	Gradings    GradingRepository
	Reports     GradeReader
	Enrollments EnrollmentRepository
	Notifier    Notifier
	AnswerKeys  AnswerKeyProvider
}

// QuizService contains the quiz lifecycle and grading use cases.
type QuizService struct {
	deps Dependencies
	now  func() time.Time
	perm func(n int) []int
}

func NewQuizService(deps Dependencies) *QuizService {
	return NewQuizServiceWithClock(deps, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(deps Dependencies, now func() time.Time) *QuizService {
	return &QuizService{deps: deps, now: now, perm: rand.Perm}
}

// CreateQuiz assembles a new quiz for the course by claiming QuestionsPerQuiz
// unclaimed questions of the requested type, then notifies enrolled students.
func (s *QuizService) CreateQuiz(ctx context.Context, p *domain.Principal, courseID int64, qt domain.QuestionType) (int64, error) {
	course, err := s.deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if err := Authorize(p, ActionCreateQuiz, Facts{CourseOwnerID: course.InstructorID}); err != nil {
		return 0, err
	}
	if !qt.Valid() {
		return 0, domain.ErrInvalidQuizType
	}

	all, err := s.deps.Questions.QuestionsByCourseAndType(ctx, courseID, qt, false)
	if err != nil {
		return 0, err
	}
	unclaimed, err := s.deps.Questions.QuestionsByCourseAndType(ctx, courseID, qt, true)
	if err != nil {
		return 0, err
	}
	if len(all) < domain.QuestionsPerQuiz || len(unclaimed) < domain.QuestionsPerQuiz {
		return 0, domain.ErrInsufficientQuestions
	}

	// Uniform draw without replacement; content shuffling, not a security
	// control. The full permutation doubles as the re-draw order when a
	// concurrent assembly wins a candidate first.
	candidateIDs := make([]int64, len(unclaimed))
	for i, j := range s.perm(len(unclaimed)) {
		candidateIDs[i] = unclaimed[j].ID
	}

	seq, err := s.deps.Quizzes.CountQuizzes(ctx)
	if err != nil {
		return 0, err
	}
	quiz := domain.Quiz{
		CourseID:      courseID,
		Title:         fmt.Sprintf("quiz%d", seq+1),
		QuestionCount: domain.QuestionsPerQuiz,
		Randomized:    true,
		CreatedAt:     s.now(),
	}

	quizID, err := s.deps.Quizzes.CreateWithClaims(ctx, quiz, candidateIDs, domain.QuestionsPerQuiz)
	if err != nil {
		return 0, err
	}

	students, err := s.deps.Enrollments.EnrolledStudents(ctx, courseID)
	if err != nil {
		log.Printf("list enrolled students for course %d: %v", courseID, err)
		return quizID, nil
	}
	msg := fmt.Sprintf("A new Quiz with id: %d has been uploaded For course: %s", quizID, course.Name)
	for _, studentID := range students {
		s.notify(ctx, studentID, msg)
	}
	return quizID, nil
}

// ActiveQuizzes reports the still-open quizzes for a course with their
// remaining whole minutes, plus the historical quiz count.
func (s *QuizService) ActiveQuizzes(ctx context.Context, p *domain.Principal, courseID int64) (domain.ActiveQuizReport, error) {
	course, err := s.deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return domain.ActiveQuizReport{}, err
	}
	facts, err := s.readFacts(ctx, p, course)
	if err != nil {
		return domain.ActiveQuizReport{}, err
	}
	if err := Authorize(p, ActionViewQuiz, facts); err != nil {
		return domain.ActiveQuizReport{}, err
	}

	quizzes, err := s.deps.Quizzes.QuizzesByCourse(ctx, courseID)
	if err != nil {
		return domain.ActiveQuizReport{}, err
	}

	now := s.now()
	report := domain.ActiveQuizReport{TotalQuizzes: len(quizzes)}
	for _, quiz := range quizzes {
		remaining := quiz.CreatedAt.Add(domain.QuizWindow).Sub(now)
		if remaining <= 0 {
			continue
		}
		report.Open = append(report.Open, domain.OpenQuiz{
			QuizID:      quiz.ID,
			MinutesLeft: int((remaining + time.Minute - 1) / time.Minute),
		})
	}
	return report, nil
}

// GetQuiz returns quiz metadata for the owning instructor or an enrolled student.
func (s *QuizService) GetQuiz(ctx context.Context, p *domain.Principal, quizID int64) (domain.Quiz, error) {
	quiz, course, err := s.quizWithCourse(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	facts, err := s.readFacts(ctx, p, course)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := Authorize(p, ActionViewQuiz, facts); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// QuizQuestions returns a quiz's questions in stable order. Students may only
// fetch while the window is open and before their own submission; the owning
// instructor is exempt from both checks.
func (s *QuizService) QuizQuestions(ctx context.Context, p *domain.Principal, quizID int64) ([]domain.Question, error) {
	quiz, course, err := s.quizWithCourse(ctx, quizID)
	if err != nil {
		return nil, err
	}
	facts, err := s.readFacts(ctx, p, course)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, ActionViewQuiz, facts); err != nil {
		return nil, err
	}

	if p.Role == domain.RoleStudent {
		if !quiz.OpenAt(s.now()) {
			return nil, domain.ErrQuizClosed
		}
		submitted, err := s.deps.Gradings.HasGrading(ctx, quizID, p.UserID)
		if err != nil {
			return nil, err
		}
		if submitted {
			return nil, domain.ErrDuplicateSubmission
		}
	}
	return s.deps.Questions.QuestionsByQuiz(ctx, quizID)
}

// Submit scores an enrolled student's ordered answers against an open,
// not-yet-attempted quiz and records the grade exactly once.
func (s *QuizService) Submit(ctx context.Context, p *domain.Principal, quizID int64, answers []string) (int, error) {
	quiz, err := s.deps.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}

	facts := Facts{}
	if p != nil && p.Role == domain.RoleStudent {
		enrolled, err := s.deps.Enrollments.IsEnrolled(ctx, p.UserID, quiz.CourseID)
		if err != nil {
			return 0, err
		}
		facts.Enrolled = enrolled
	}
	if err := Authorize(p, ActionSubmitQuiz, facts); err != nil {
		return 0, err
	}

	if !quiz.OpenAt(s.now()) {
		return 0, domain.ErrQuizClosed
	}

	// Fast path; the storage uniqueness constraint is the real guarantee.
	submitted, err := s.deps.Gradings.HasGrading(ctx, quizID, p.UserID)
	if err != nil {
		return 0, err
	}
	if submitted {
		return 0, domain.ErrDuplicateSubmission
	}

	key, err := s.deps.AnswerKeys.AnswerKey(ctx, quizID)
	if err != nil {
		return 0, err
	}
	if len(answers) != len(key) {
		return 0, domain.ErrMalformedSubmission
	}

	grade := 0
	for i, correct := range key {
		if answers[i] == correct {
			grade++
		}
	}

	if err := s.deps.Gradings.CreateGrading(ctx, domain.Grading{
		QuizID:    quizID,
		StudentID: p.UserID,
		Grade:     grade,
	}); err != nil {
		return 0, err
	}

	s.notify(ctx, p.UserID, fmt.Sprintf("Quiz %d has been graded", quizID))
	return grade, nil
}

// AddQuestion stores a single caller-identified question in the course's bank.
func (s *QuizService) AddQuestion(ctx context.Context, p *domain.Principal, draft domain.QuestionDraft) error {
	course, err := s.deps.Courses.GetCourse(ctx, draft.CourseID)
	if err != nil {
		return err
	}
	if err := Authorize(p, ActionAddQuestion, Facts{CourseOwnerID: course.InstructorID}); err != nil {
		return err
	}
	if !draft.Type.Valid() {
		return domain.ErrInvalidQuizType
	}
	return s.deps.Questions.CreateQuestion(ctx, questionFromDraft(draft))
}

// CreateQuestionBank upserts a batch of questions: existing ids are
// overwritten (their quiz claim untouched), missing ids are created.
func (s *QuizService) CreateQuestionBank(ctx context.Context, p *domain.Principal, courseID int64, drafts []domain.QuestionDraft) error {
	course, err := s.deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if err := Authorize(p, ActionCreateQuestionBank, Facts{CourseOwnerID: course.InstructorID}); err != nil {
		return err
	}
	for _, draft := range drafts {
		if !draft.Type.Valid() {
			return domain.ErrInvalidQuizType
		}
		draft.CourseID = courseID
		if err := s.deps.Questions.UpsertQuestion(ctx, questionFromDraft(draft)); err != nil {
			return err
		}
	}
	return nil
}

// QuestionBank returns every question of the course. An empty bank is a
// domain condition, not a not-found.
func (s *QuizService) QuestionBank(ctx context.Context, p *domain.Principal, courseID int64) ([]domain.Question, error) {
	course, err := s.deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, ActionViewQuestionBank, Facts{CourseOwnerID: course.InstructorID}); err != nil {
		return nil, err
	}
	bank, err := s.deps.Questions.QuestionsByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, domain.ErrInsufficientQuestions
	}
	return bank, nil
}

// Feedback returns the recorded grade for (quiz, student), visible to the
// owning instructor and to the student themself.
func (s *QuizService) Feedback(ctx context.Context, p *domain.Principal, quizID, studentID int64) (int, error) {
	_, course, err := s.quizWithCourse(ctx, quizID)
	if err != nil {
		return 0, err
	}
	facts, err := s.readFacts(ctx, p, course)
	if err != nil {
		return 0, err
	}
	facts.TargetStudentID = studentID
	if err := Authorize(p, ActionViewFeedback, facts); err != nil {
		return 0, err
	}

	grade, ok, err := s.deps.Reports.GradeFor(ctx, quizID, studentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrGradingNotAvailable
	}
	return grade, nil
}

// Grades returns every recorded grade for the quiz, owner-instructor only,
// in natural storage order.
func (s *QuizService) Grades(ctx context.Context, p *domain.Principal, quizID int64) ([]domain.StudentGrade, error) {
	_, course, err := s.quizWithCourse(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, ActionListGrades, Facts{CourseOwnerID: course.InstructorID}); err != nil {
		return nil, err
	}
	return s.deps.Reports.GradesByQuiz(ctx, quizID)
}

func (s *QuizService) quizWithCourse(ctx context.Context, quizID int64) (domain.Quiz, domain.Course, error) {
	quiz, err := s.deps.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, domain.Course{}, err
	}
	course, err := s.deps.Courses.GetCourse(ctx, quiz.CourseID)
	if err != nil {
		return domain.Quiz{}, domain.Course{}, err
	}
	return quiz, course, nil
}

// readFacts gathers the ownership/enrollment snapshot for mixed-role reads.
// The enrollment oracle is consulted only for students.
func (s *QuizService) readFacts(ctx context.Context, p *domain.Principal, course domain.Course) (Facts, error) {
	facts := Facts{CourseOwnerID: course.InstructorID}
	if p != nil && p.Role == domain.RoleStudent {
		enrolled, err := s.deps.Enrollments.IsEnrolled(ctx, p.UserID, course.ID)
		if err != nil {
			return Facts{}, err
		}
		facts.Enrolled = enrolled
	}
	return facts, nil
}

func (s *QuizService) notify(ctx context.Context, userID int64, message string) {
	if err := s.deps.Notifier.Notify(ctx, userID, message); err != nil {
		log.Printf("notify user %d: %v", userID, err)
	}
}

func questionFromDraft(draft domain.QuestionDraft) domain.Question {
	return domain.Question{
		ID:            draft.ID,
		CourseID:      draft.CourseID,
		Type:          draft.Type,
		Text:          draft.Text,
		Options:       draft.Options,
		CorrectAnswer: draft.CorrectAnswer,
	}
}
