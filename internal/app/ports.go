package app

import (
	"context"

	"pvp-quiz-service/internal/domain"
)

// QuestionSource supplies question content for a level and difficulty. The
// coordinator assigns the question number.
type QuestionSource interface {
	NextQuestion(ctx context.Context, level, difficulty int) (domain.Question, error)
}

// ResultStore persists a completed match exactly once.
type ResultStore interface {
	SaveMatchResult(ctx context.Context, result domain.MatchResult) error
}

// LeaderboardSink folds a match result into the global XP leaderboard and
// returns the refreshed top rows for broadcasting. Failures here are logged,
// never fatal to the match.
type LeaderboardSink interface {
	Record(ctx context.Context, rankings []domain.RankingEntry) ([]domain.LeaderboardRow, error)
	Top(ctx context.Context) ([]domain.LeaderboardRow, error)
}
