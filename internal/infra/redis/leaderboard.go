package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pvp-quiz-service/internal/domain"
)

const (
	xpKey    = "pvp:leaderboard:xp"
	namesKey = "pvp:leaderboard:names"

	defaultTopSize = 20
)

// Leaderboard accumulates lifetime XP per player in a sorted set. Each
// completed match adds the player's final score to their total.
type Leaderboard struct {
	client *redis.Client
	size   int
}

func NewLeaderboard(client *redis.Client, size int) *Leaderboard {
	if size <= 0 {
		size = defaultTopSize
	}
	return &Leaderboard{client: client, size: size}
}

// Record folds one match's rankings into the XP totals and returns the
// refreshed top rows.
func (l *Leaderboard) Record(ctx context.Context, rankings []domain.RankingEntry) ([]domain.LeaderboardRow, error) {
	pipe := l.client.Pipeline()
	for _, entry := range rankings {
		pipe.ZIncrBy(ctx, xpKey, float64(entry.Score), entry.UserID)
		pipe.HSet(ctx, namesKey, entry.UserID, entry.FirstName+" "+entry.LastName)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record xp: %w", err)
	}
	return l.Top(ctx)
}

// Top returns the highest-XP players, best first.
func (l *Leaderboard) Top(ctx context.Context) ([]domain.LeaderboardRow, error) {
	members, err := l.client.ZRevRangeWithScores(ctx, xpKey, 0, int64(l.size)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("top xp: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(members))
	for _, z := range members {
		ids = append(ids, z.Member.(string))
	}
	names, err := l.client.HMGet(ctx, namesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard names: %w", err)
	}

	rows := make([]domain.LeaderboardRow, 0, len(members))
	for i, z := range members {
		name := ""
		if i < len(names) {
			if s, ok := names[i].(string); ok {
				name = s
			}
		}
		rows = append(rows, domain.LeaderboardRow{
			Rank:   i + 1,
			Name:   name,
			XP:     int(z.Score),
			UserID: ids[i],
		})
	}
	return rows, nil
}
