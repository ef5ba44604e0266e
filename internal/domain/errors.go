package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no principal accompanies the call.
	ErrUnauthenticated = errors.New("no logged in user is found")
	// ErrUnauthorizedAccess marks a feature-level restriction (e.g. a student
	// touching instructor-only tooling), distinct from an ownership mismatch.
	ErrUnauthorizedAccess = errors.New("access to this feature is not allowed for this role")
	// ErrCourseNotFound is returned when the referenced course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrQuizNotFound is returned when the referenced quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound is returned when the referenced question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuizType is returned for a question type outside {1,2,3}.
	ErrInvalidQuizType = errors.New("invalid quiz type, valid types are 1-3")
	// ErrInsufficientQuestions is returned when the matching pool (total or
	// unclaimed) is smaller than QuestionsPerQuiz, and when a question bank is empty.
	ErrInsufficientQuestions = errors.New("not enough questions available")
	// ErrDuplicateQuestion is returned when a caller-supplied question id already exists.
	ErrDuplicateQuestion = errors.New("question with this id already exists")
	// ErrDuplicateSubmission is returned on a second submission for the same
	// (quiz, student) pair.
	ErrDuplicateSubmission = errors.New("a response for this quiz has already been submitted")
	// ErrQuizClosed is returned once a quiz's availability window has elapsed.
	ErrQuizClosed = errors.New("the quiz has been finished")
	// ErrGradingNotAvailable is returned when no grading exists yet for the pair.
	ErrGradingNotAvailable = errors.New("quiz has not been graded yet")
	// ErrMalformedSubmission is returned when the answer list length does not
	// match the quiz's question count.
	ErrMalformedSubmission = errors.New("answer list does not match question count")
	// ErrAuthorizationDenied is the errors.Is target for every AuthorizationError.
	ErrAuthorizationDenied = errors.New("authorization denied")
)

// DenyReason classifies why an authorization check failed.
type DenyReason string

const (
	DenyWrongRole   DenyReason = "WrongRole"
	DenyNotOwner    DenyReason = "NotOwner"
	DenyNotEnrolled DenyReason = "NotEnrolled"
	DenyNotSelf     DenyReason = "NotSelf"
)

// AuthorizationError is a role/ownership denial carrying its reason.
type AuthorizationError struct {
	Reason DenyReason
}

func (e *AuthorizationError) Error() string {
	return "authorization denied: " + string(e.Reason)
}

// Is lets callers match any denial via errors.Is(err, ErrAuthorizationDenied).
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}

// Denied builds an AuthorizationError for the given reason.
func Denied(reason DenyReason) error {
	return &AuthorizationError{Reason: reason}
}

// DataProcessingError wraps an infrastructure serialization fault. It always
// carries an underlying cause and is never a business outcome.
type DataProcessingError struct {
	Op    string
	Cause error
}

func (e *DataProcessingError) Error() string {
	return fmt.Sprintf("data processing failed: %s: %v", e.Op, e.Cause)
}

func (e *DataProcessingError) Unwrap() error {
	return e.Cause
}
