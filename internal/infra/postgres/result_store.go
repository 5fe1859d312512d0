package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"pvp-quiz-service/internal/domain"
)

// ResultStore persists completed match results as JSONB rows.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveMatchResult(ctx context.Context, result domain.MatchResult) error {
	rankings, err := json.Marshal(result.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO match_results (match_id, room_id, rankings, ended_at) VALUES ($1, $2, $3::jsonb, $4)`,
		result.MatchID, result.RoomID, rankings, result.EndedAt)
	if err != nil {
		return fmt.Errorf("save match result: %w", err)
	}
	return nil
}
