package domain

import "time"

// Current quiz policy: every quiz draws the same fixed number of questions
// and stays open for the same fixed window after creation.
const (
	QuestionsPerQuiz = 5
	QuizWindow       = 15 * time.Minute
)

// QuestionType is immutable reference data identifying how a question is answered.
type QuestionType int

const (
	QuestionTypeMCQ         QuestionType = 1
	QuestionTypeTrueFalse   QuestionType = 2
	QuestionTypeShortAnswer QuestionType = 3
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	return t >= QuestionTypeMCQ && t <= QuestionTypeShortAnswer
}

func (t QuestionType) Label() string {
	switch t {
	case QuestionTypeMCQ:
		return "MCQ"
	case QuestionTypeTrueFalse:
		return "TRUE_FALSE"
	default:
		return "SHORT_ANSWER"
	}
}

// Role is the closed set of principal roles.
type Role int

const (
	RoleAdmin      Role = 1
	RoleStudent    Role = 2
	RoleInstructor Role = 3
)

// Principal is the authenticated caller as supplied by the identity layer.
// A nil *Principal means no one is logged in.
type Principal struct {
	UserID int64
	Role   Role
}

// Course is owned by exactly one instructor; names are unique across courses.
type Course struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Duration     string    `json:"duration"`
	InstructorID int64     `json:"instructorId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Question belongs to a course's question bank. QuizID is nil while the
// question is unclaimed; once a quiz claims it the assignment is permanent.
type Question struct {
	ID            int64        `json:"id"`
	CourseID      int64        `json:"courseId"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	QuizID        *int64       `json:"quizId,omitempty"`
}

// Claimed reports whether the question has been assigned to a quiz.
func (q Question) Claimed() bool {
	return q.QuizID != nil
}

// QuestionDraft is the authoring payload for AddQuestion / CreateQuestionBank.
// The id is caller-supplied.
type QuestionDraft struct {
	ID            int64        `json:"id"`
	CourseID      int64        `json:"courseId"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
}

// Quiz is immutable after creation; its open/closed state is derived from
// CreatedAt and QuizWindow, never stored.
type Quiz struct {
	ID            int64     `json:"id"`
	CourseID      int64     `json:"courseId"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"questionCount"`
	Randomized    bool      `json:"randomized"`
	CreatedAt     time.Time `json:"createdAt"`
}

// OpenAt reports whether the quiz window is still open at the given instant.
func (q Quiz) OpenAt(now time.Time) bool {
	return now.Before(q.CreatedAt.Add(QuizWindow))
}

// Grading records a student's one and only submission result for a quiz.
type Grading struct {
	ID        int64 `json:"id"`
	QuizID    int64 `json:"quizId"`
	StudentID int64 `json:"studentId"`
	Grade     int   `json:"grade"`
}

// StudentGrade is the reporting view of a grading row.
type StudentGrade struct {
	StudentID int64 `json:"studentId"`
	Grade     int   `json:"grade"`
}

// OpenQuiz describes a still-open quiz and the whole minutes left on its window.
type OpenQuiz struct {
	QuizID      int64 `json:"quizId"`
	MinutesLeft int   `json:"minutesLeft"`
}

// ActiveQuizReport lists the open quizzes for a course. When none are open,
// TotalQuizzes still carries the historical quiz count for the course.
type ActiveQuizReport struct {
	Open         []OpenQuiz `json:"open"`
	TotalQuizzes int        `json:"totalQuizzes"`
}
