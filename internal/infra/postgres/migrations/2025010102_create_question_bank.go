package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS question_bank (
	id                  BIGSERIAL PRIMARY KEY,
	level               INT NOT NULL,
	difficulty          INT NOT NULL,
	question_text       TEXT NOT NULL,
	correct_answer      TEXT NOT NULL,
	time_limit_seconds  INT NOT NULL DEFAULT 30
)`)
			if err != nil {
				return err
			}
			_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS question_bank_level_difficulty ON question_bank (level, difficulty)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS question_bank`)
			return err
		},
	)
}
