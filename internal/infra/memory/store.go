package memory

import (
	"context"
	"sort"
	"sync"

	"lms-quiz-service/internal/domain"
)

// Store is an in-memory implementation of every repository port the quiz core
// consumes (useful for tests/demos). All operations run under one mutex, which
// makes the claim sequence and the grading uniqueness check naturally atomic.
type Store struct {
	mu          sync.RWMutex
	courses     map[int64]domain.Course
	questions   map[int64]domain.Question
	quizzes     map[int64]domain.Quiz
	gradings    []domain.Grading
	gradingKeys map[[2]int64]int // (quizID, studentID) -> grade
	enrollments map[[2]int64]struct{}
	nextQuizID  int64
	nextGradeID int64
}

func NewStore() *Store {
	return &Store{
		courses:     make(map[int64]domain.Course),
		questions:   make(map[int64]domain.Question),
		quizzes:     make(map[int64]domain.Quiz),
		gradingKeys: make(map[[2]int64]int),
		enrollments: make(map[[2]int64]struct{}),
	}
}

// PutCourse seeds a course record.
func (s *Store) PutCourse(course domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
}

// PutEnrollment seeds an enrollment fact.
func (s *Store) PutEnrollment(studentID, courseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[[2]int64{studentID, courseID}] = struct{}{}
}

func (s *Store) GetCourse(_ context.Context, id int64) (domain.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[id]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return course, nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; ok {
		return domain.ErrDuplicateQuestion
	}
	s.questions[q.ID] = q
	return nil
}

func (s *Store) UpsertQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.questions[q.ID]; ok {
		// Overwrite content; an existing quiz claim stays in place.
		q.QuizID = existing.QuizID
	}
	s.questions[q.ID] = q
	return nil
}

func (s *Store) QuestionsByCourse(_ context.Context, courseID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if q.CourseID == courseID {
			out = append(out, q)
		}
	}
	sortQuestions(out)
	return out, nil
}

func (s *Store) QuestionsByCourseAndType(_ context.Context, courseID int64, qt domain.QuestionType, unclaimedOnly bool) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if q.CourseID != courseID || q.Type != qt {
			continue
		}
		if unclaimedOnly && q.Claimed() {
			continue
		}
		out = append(out, q)
	}
	sortQuestions(out)
	return out, nil
}

func (s *Store) QuestionsByQuiz(_ context.Context, quizID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if q.QuizID != nil && *q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sortQuestions(out)
	return out, nil
}

func (s *Store) GetQuiz(_ context.Context, id int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) QuizzesByCourse(_ context.Context, courseID int64) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.CourseID == courseID {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountQuizzes(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quizzes), nil
}

// CreateWithClaims claims questions from candidateIDs in order until need
// succeed, then stores the quiz. Holding the write lock for the whole sequence
// gives the same guarantee a serializable transaction would: a concurrent
// assembly can never claim a question this call already took.
func (s *Store) CreateWithClaims(_ context.Context, quiz domain.Quiz, candidateIDs []int64, need int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quizID := s.nextQuizID + 1
	claimed := make([]int64, 0, need)
	for _, id := range candidateIDs {
		if len(claimed) == need {
			break
		}
		q, ok := s.questions[id]
		if !ok || q.Claimed() {
			continue
		}
		ref := quizID
		q.QuizID = &ref
		s.questions[id] = q
		claimed = append(claimed, id)
	}
	if len(claimed) < need {
		for _, id := range claimed {
			q := s.questions[id]
			q.QuizID = nil
			s.questions[id] = q
		}
		return 0, domain.ErrInsufficientQuestions
	}

	s.nextQuizID = quizID
	quiz.ID = quizID
	s.quizzes[quizID] = quiz
	return quizID, nil
}

func (s *Store) CreateGrading(_ context.Context, g domain.Grading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{g.QuizID, g.StudentID}
	if _, ok := s.gradingKeys[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	s.nextGradeID++
	g.ID = s.nextGradeID
	s.gradings = append(s.gradings, g)
	s.gradingKeys[key] = g.Grade
	return nil
}

func (s *Store) HasGrading(_ context.Context, quizID, studentID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.gradingKeys[[2]int64{quizID, studentID}]
	return ok, nil
}

func (s *Store) GradeFor(_ context.Context, quizID, studentID int64) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grade, ok := s.gradingKeys[[2]int64{quizID, studentID}]
	return grade, ok, nil
}

func (s *Store) GradesByQuiz(_ context.Context, quizID int64) ([]domain.StudentGrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StudentGrade
	for _, g := range s.gradings {
		if g.QuizID == quizID {
			out = append(out, domain.StudentGrade{StudentID: g.StudentID, Grade: g.Grade})
		}
	}
	return out, nil
}

func (s *Store) IsEnrolled(_ context.Context, studentID, courseID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enrollments[[2]int64{studentID, courseID}]
	return ok, nil
}

func (s *Store) EnrolledStudents(_ context.Context, courseID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for key := range s.enrollments {
		if key[1] == courseID {
			out = append(out, key[0])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func sortQuestions(qs []domain.Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}
