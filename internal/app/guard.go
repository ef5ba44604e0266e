package app

import "lms-quiz-service/internal/domain"

// Action enumerates every guarded entry point of the quiz core.
type Action int

const (
	// Instructor-owner actions.
	ActionCreateQuiz Action = iota
	ActionAddQuestion
	ActionCreateQuestionBank
	ActionViewQuestionBank
	ActionListGrades
	// Student action.
	ActionSubmitQuiz
	// Mixed-role read actions.
	ActionViewQuiz
	ActionViewFeedback
)

// Facts is the resource-ownership snapshot an authorization decision runs
// against. Callers gather it fresh for every call; nothing is cached.
type Facts struct {
	CourseOwnerID   int64
	Enrolled        bool
	TargetStudentID int64
}

// Authorize is the single authorization decision function. It is pure: given
// the principal, the attempted action and the current fact snapshot it either
// returns nil or a typed denial, with no side effects.
//
// Precedence: authentication first, then role, then ownership/enrollment,
// then the self-only rule for feedback reads.
func Authorize(p *domain.Principal, action Action, facts Facts) error {
	if p == nil {
		return domain.ErrUnauthenticated
	}

	switch action {
	case ActionCreateQuiz, ActionAddQuestion, ActionCreateQuestionBank,
		ActionViewQuestionBank, ActionListGrades:
		if p.Role != domain.RoleInstructor {
			// Question-bank creation is feature-restricted for students,
			// which outranks the plain role mismatch.
			if action == ActionCreateQuestionBank && p.Role == domain.RoleStudent {
				return domain.ErrUnauthorizedAccess
			}
			return domain.Denied(domain.DenyWrongRole)
		}
		if p.UserID != facts.CourseOwnerID {
			return domain.Denied(domain.DenyNotOwner)
		}
		return nil

	case ActionSubmitQuiz:
		if p.Role != domain.RoleStudent {
			return domain.ErrUnauthorizedAccess
		}
		if !facts.Enrolled {
			return domain.Denied(domain.DenyNotEnrolled)
		}
		return nil

	case ActionViewQuiz:
		return authorizeRead(p, facts)

	case ActionViewFeedback:
		if err := authorizeRead(p, facts); err != nil {
			return err
		}
		if p.Role == domain.RoleStudent && p.UserID != facts.TargetStudentID {
			return domain.Denied(domain.DenyNotSelf)
		}
		return nil
	}

	return domain.Denied(domain.DenyWrongRole)
}

func authorizeRead(p *domain.Principal, facts Facts) error {
	switch p.Role {
	case domain.RoleInstructor:
		if p.UserID != facts.CourseOwnerID {
			return domain.Denied(domain.DenyNotOwner)
		}
	case domain.RoleStudent:
		if !facts.Enrolled {
			return domain.Denied(domain.DenyNotEnrolled)
		}
	default:
		return domain.Denied(domain.DenyWrongRole)
	}
	return nil
}
