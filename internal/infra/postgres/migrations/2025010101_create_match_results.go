package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS match_results (
	match_id   TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	rankings   JSONB NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL
)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS match_results`)
			return err
		},
	)
}
