package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"lms-quiz-service/internal/domain"
)

const uniqueViolation = "23505"

type courseRow struct {
	bun.BaseModel `bun:"table:courses"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull"`
	Description  string    `bun:"description"`
	Duration     string    `bun:"duration"`
	InstructorID int64     `bun:"instructor_id,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID            int64  `bun:"question_id,pk"`
	CourseID      int64  `bun:"course_id,notnull"`
	Type          int    `bun:"question_type,notnull"`
	Text          string `bun:"question_text,notnull"`
	Options       string `bun:"options,type:jsonb"`
	CorrectAnswer string `bun:"correct_answer,notnull"`
	QuizID        *int64 `bun:"quiz_id"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID            int64     `bun:"quiz_id,pk,autoincrement"`
	CourseID      int64     `bun:"course_id,notnull"`
	Title         string    `bun:"title,notnull"`
	QuestionCount int       `bun:"question_count,notnull"`
	Randomized    bool      `bun:"randomized,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type gradingRow struct {
	bun.BaseModel `bun:"table:gradings"`

	ID        int64 `bun:"id,pk,autoincrement"`
	QuizID    int64 `bun:"quiz_id,notnull"`
	StudentID int64 `bun:"student_id,notnull"`
	Grade     int   `bun:"grade,notnull"`
}

type enrollmentRow struct {
	bun.BaseModel `bun:"table:enrollments"`

	StudentID int64 `bun:"student_id,pk"`
	CourseID  int64 `bun:"course_id,pk"`
}

// Store implements the quiz core's repository ports on Postgres via bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetCourse(ctx context.Context, id int64) (domain.Course, error) {
	var row courseRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("load course: %w", err)
	}
	return domain.Course{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		Duration:     row.Duration,
		InstructorID: row.InstructorID,
		CreatedAt:    row.CreatedAt,
	}, nil
}

// SeedCourse inserts a course; course CRUD proper belongs to the excluded
// outer layer, this exists for wiring demos and tests.
func (s *Store) SeedCourse(ctx context.Context, course domain.Course) (int64, error) {
	row := courseRow{
		ID:           course.ID,
		Name:         course.Name,
		Description:  course.Description,
		Duration:     course.Duration,
		InstructorID: course.InstructorID,
		CreatedAt:    course.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return 0, fmt.Errorf("seed course: %w", err)
	}
	return row.ID, nil
}

// SeedEnrollment records an enrollment fact for wiring demos and tests.
func (s *Store) SeedEnrollment(ctx context.Context, studentID, courseID int64) error {
	row := enrollmentRow{StudentID: studentID, CourseID: courseID}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed enrollment: %w", err)
	}
	return nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	row, err := questionToRow(q)
	if err != nil {
		return err
	}
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT (question_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrDuplicateQuestion
	}
	return nil
}

func (s *Store) UpsertQuestion(ctx context.Context, q domain.Question) error {
	row, err := questionToRow(q)
	if err != nil {
		return err
	}
	// Overwrite content; an existing quiz claim stays in place.
	_, err = s.db.NewInsert().Model(&row).
		On("CONFLICT (question_id) DO UPDATE").
		Set("course_id = EXCLUDED.course_id").
		Set("question_type = EXCLUDED.question_type").
		Set("question_text = EXCLUDED.question_text").
		Set("options = EXCLUDED.options").
		Set("correct_answer = EXCLUDED.correct_answer").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

func (s *Store) QuestionsByCourse(ctx context.Context, courseID int64) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("course_id = ?", courseID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	return questionsFromRows(rows)
}

func (s *Store) QuestionsByCourseAndType(ctx context.Context, courseID int64, qt domain.QuestionType, unclaimedOnly bool) ([]domain.Question, error) {
	var rows []questionRow
	q := s.db.NewSelect().Model(&rows).
		Where("course_id = ?", courseID).
		Where("question_type = ?", int(qt)).
		Order("question_id ASC")
	if unclaimedOnly {
		q = q.Where("quiz_id IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	return questionsFromRows(rows)
}

func (s *Store) QuestionsByQuiz(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quiz questions: %w", err)
	}
	return questionsFromRows(rows)
}

func (s *Store) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).Where("quiz_id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quizFromRow(row), nil
}

func (s *Store) QuizzesByCourse(ctx context.Context, courseID int64) ([]domain.Quiz, error) {
	var rows []quizRow
	err := s.db.NewSelect().Model(&rows).
		Where("course_id = ?", courseID).
		Order("quiz_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quizzes: %w", err)
	}
	quizzes := make([]domain.Quiz, len(rows))
	for i, row := range rows {
		quizzes[i] = quizFromRow(row)
	}
	return quizzes, nil
}

func (s *Store) CountQuizzes(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*quizRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count quizzes: %w", err)
	}
	return count, nil
}

// CreateWithClaims inserts the quiz and conditionally claims candidates until
// need succeed, all in one transaction. The claim is an atomic
// "set quiz_id where still NULL" update, so a candidate stolen by a concurrent
// assembly simply reports zero affected rows and the next candidate is tried.
func (s *Store) CreateWithClaims(ctx context.Context, quiz domain.Quiz, candidateIDs []int64, need int) (int64, error) {
	var quizID int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := quizRow{
			CourseID:      quiz.CourseID,
			Title:         quiz.Title,
			QuestionCount: quiz.QuestionCount,
			Randomized:    quiz.Randomized,
			CreatedAt:     quiz.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Returning("quiz_id").Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}

		claimed := 0
		for _, id := range candidateIDs {
			if claimed == need {
				break
			}
			res, err := tx.NewUpdate().Model((*questionRow)(nil)).
				Set("quiz_id = ?", row.ID).
				Where("question_id = ?", id).
				Where("quiz_id IS NULL").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("claim question %d: %w", id, err)
			}
			if affected, err := res.RowsAffected(); err == nil && affected == 1 {
				claimed++
			}
		}
		if claimed < need {
			// Rolling back releases every claim made by this call.
			return domain.ErrInsufficientQuestions
		}
		quizID = row.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return quizID, nil
}

func (s *Store) CreateGrading(ctx context.Context, g domain.Grading) error {
	row := gradingRow{QuizID: g.QuizID, StudentID: g.StudentID, Grade: g.Grade}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
			return domain.ErrDuplicateSubmission
		}
		return fmt.Errorf("insert grading: %w", err)
	}
	return nil
}

func (s *Store) HasGrading(ctx context.Context, quizID, studentID int64) (bool, error) {
	exists, err := s.db.NewSelect().Model((*gradingRow)(nil)).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check grading: %w", err)
	}
	return exists, nil
}

func (s *Store) GradeFor(ctx context.Context, quizID, studentID int64) (int, bool, error) {
	var row gradingRow
	err := s.db.NewSelect().Model(&row).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load grade: %w", err)
	}
	return row.Grade, true, nil
}

func (s *Store) GradesByQuiz(ctx context.Context, quizID int64) ([]domain.StudentGrade, error) {
	var rows []gradingRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load grades: %w", err)
	}
	grades := make([]domain.StudentGrade, len(rows))
	for i, row := range rows {
		grades[i] = domain.StudentGrade{StudentID: row.StudentID, Grade: row.Grade}
	}
	return grades, nil
}

func (s *Store) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	exists, err := s.db.NewSelect().Model((*enrollmentRow)(nil)).
		Where("student_id = ?", studentID).
		Where("course_id = ?", courseID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (s *Store) EnrolledStudents(ctx context.Context, courseID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*enrollmentRow)(nil)).
		Column("student_id").
		Where("course_id = ?", courseID).
		Order("student_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("load enrolled students: %w", err)
	}
	return ids, nil
}

func questionToRow(q domain.Question) (questionRow, error) {
	options := q.Options
	if options == nil {
		options = []string{}
	}
	encoded, err := json.Marshal(options)
	if err != nil {
		return questionRow{}, &domain.DataProcessingError{Op: "encode question options", Cause: err}
	}
	return questionRow{
		ID:            q.ID,
		CourseID:      q.CourseID,
		Type:          int(q.Type),
		Text:          q.Text,
		Options:       string(encoded),
		CorrectAnswer: q.CorrectAnswer,
		QuizID:        q.QuizID,
	}, nil
}

func questionsFromRows(rows []questionRow) ([]domain.Question, error) {
	questions := make([]domain.Question, len(rows))
	for i, row := range rows {
		var options []string
		if row.Options != "" {
			if err := json.Unmarshal([]byte(row.Options), &options); err != nil {
				return nil, &domain.DataProcessingError{Op: "decode question options", Cause: err}
			}
		}
		questions[i] = domain.Question{
			ID:            row.ID,
			CourseID:      row.CourseID,
			Type:          domain.QuestionType(row.Type),
			Text:          row.Text,
			Options:       options,
			CorrectAnswer: row.CorrectAnswer,
			QuizID:        row.QuizID,
		}
	}
	return questions, nil
}

func quizFromRow(row quizRow) domain.Quiz {
	return domain.Quiz{
		ID:            row.ID,
		CourseID:      row.CourseID,
		Title:         row.Title,
		QuestionCount: row.QuestionCount,
		Randomized:    row.Randomized,
		CreatedAt:     row.CreatedAt,
	}
}
