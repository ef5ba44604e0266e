package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lms-quiz-service/internal/domain"
)

// ReportingStore serves the read side of feedback and grade reporting straight
// from Postgres over a pgx pool, bypassing the ORM layer.
type ReportingStore struct {
	pool *pgxpool.Pool
}

func NewReportingStore(pool *pgxpool.Pool) *ReportingStore {
	return &ReportingStore{pool: pool}
}

func (r *ReportingStore) GradeFor(ctx context.Context, quizID, studentID int64) (int, bool, error) {
	var grade int
	err := r.pool.QueryRow(ctx,
		`SELECT grade FROM gradings WHERE quiz_id=$1 AND student_id=$2`,
		quizID, studentID).Scan(&grade)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load grade: %w", err)
	}
	return grade, true, nil
}

func (r *ReportingStore) GradesByQuiz(ctx context.Context, quizID int64) ([]domain.StudentGrade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, grade FROM gradings WHERE quiz_id=$1 ORDER BY id`,
		quizID)
	if err != nil {
		return nil, fmt.Errorf("load grades: %w", err)
	}
	defer rows.Close()

	var grades []domain.StudentGrade
	for rows.Next() {
		var g domain.StudentGrade
		if err := rows.Scan(&g.StudentID, &g.Grade); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		grades = append(grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grades: %w", err)
	}
	return grades, nil
}
