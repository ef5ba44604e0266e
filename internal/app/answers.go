package app

import (
	"context"

	"lms-quiz-service/internal/domain"
)

// AnswerKeySource derives a quiz's ordered answer key from its stored
// questions. Cache layers (memory, redis) wrap it as their loader.
type AnswerKeySource struct {
	questions QuestionRepository
}

func NewAnswerKeySource(questions QuestionRepository) *AnswerKeySource {
	return &AnswerKeySource{questions: questions}
}

// LoadAnswerKey returns the correct answers of the quiz's questions in the
// same stable order QuizQuestions serves them in.
func (s *AnswerKeySource) LoadAnswerKey(ctx context.Context, quizID int64) ([]string, error) {
	questions, err := s.questions.QuestionsByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}
	key := make([]string, len(questions))
	for i, q := range questions {
		key[i] = q.CorrectAnswer
	}
	return key, nil
}
