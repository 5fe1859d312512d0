package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"pvp-quiz-service/internal/domain"
)

// QuestionBank serves curated questions from Postgres. It implements both the
// direct question source and the bank loader used by the Redis cache.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) NextQuestion(ctx context.Context, level, difficulty int) (domain.Question, error) {
	row := b.pool.QueryRow(ctx,
		`SELECT question_text, correct_answer, time_limit_seconds
		 FROM question_bank WHERE level=$1 AND difficulty=$2
		 ORDER BY random() LIMIT 1`, level, difficulty)

	var text, answer string
	var limitSeconds int
	if err := row.Scan(&text, &answer, &limitSeconds); err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return domain.Question{
		Text:      text,
		Answer:    answer,
		TimeLimit: time.Duration(limitSeconds) * time.Second,
	}, nil
}

// LoadBank returns every question for a level/difficulty pair.
func (b *QuestionBank) LoadBank(ctx context.Context, level, difficulty int) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT question_text, correct_answer, time_limit_seconds
		 FROM question_bank WHERE level=$1 AND difficulty=$2`, level, difficulty)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	defer rows.Close()

	var bank []domain.Question
	for rows.Next() {
		var text, answer string
		var limitSeconds int
		if err := rows.Scan(&text, &answer, &limitSeconds); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		bank = append(bank, domain.Question{
			Text:      text,
			Answer:    answer,
			TimeLimit: time.Duration(limitSeconds) * time.Second,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	return bank, nil
}
