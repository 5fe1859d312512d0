package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pvp-quiz-service/internal/domain"
)

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func TestLeaderboardAccumulatesXP(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	lb := NewLeaderboard(newClient(mr), 10)
	ctx := context.Background()

	rows, err := lb.Record(ctx, []domain.RankingEntry{
		{Rank: 1, UserID: "u-alice", FirstName: "Alice", LastName: "Nguyen", Score: 30},
		{Rank: 2, UserID: "u-bob", FirstName: "Bob", LastName: "Tran", Score: 10},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(rows) != 2 || rows[0].UserID != "u-alice" || rows[0].XP != 30 {
		t.Fatalf("unexpected rows after first match: %+v", rows)
	}

	// Bob wins the rematch big; totals accumulate across matches.
	rows, err = lb.Record(ctx, []domain.RankingEntry{
		{Rank: 1, UserID: "u-bob", FirstName: "Bob", LastName: "Tran", Score: 50},
		{Rank: 2, UserID: "u-alice", FirstName: "Alice", LastName: "Nguyen", Score: 10},
	})
	if err != nil {
		t.Fatalf("record rematch: %v", err)
	}
	if rows[0].UserID != "u-bob" || rows[0].XP != 60 || rows[0].Rank != 1 {
		t.Fatalf("unexpected leader: %+v", rows[0])
	}
	if rows[1].UserID != "u-alice" || rows[1].XP != 40 {
		t.Fatalf("unexpected runner-up: %+v", rows[1])
	}
	if rows[0].Name != "Bob Tran" {
		t.Fatalf("expected resolved name, got %q", rows[0].Name)
	}
}

func TestLeaderboardTopRespectsSize(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	lb := NewLeaderboard(newClient(mr), 2)
	ctx := context.Background()

	if _, err := lb.Record(ctx, []domain.RankingEntry{
		{UserID: "u-a", FirstName: "A", Score: 30},
		{UserID: "u-b", FirstName: "B", Score: 20},
		{UserID: "u-c", FirstName: "C", Score: 10},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	rows, err := lb.Top(ctx)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected top 2 rows, got %d", len(rows))
	}
}

func TestLeaderboardTopEmpty(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	lb := NewLeaderboard(newClient(mr), 10)
	rows, err := lb.Top(context.Background())
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}
