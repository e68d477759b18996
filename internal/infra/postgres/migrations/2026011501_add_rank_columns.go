package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_add_rank_columns.sql
var addRankColumnsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, addRankColumnsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS participants_exam_rank_idx;
ALTER TABLE participants DROP COLUMN IF EXISTS merit_position;
ALTER TABLE participants DROP COLUMN IF EXISTS rank`)
			return err
		},
	)
}
