package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables this service needs if they do not exist.
// Statements are idempotent so startup can run them unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			provider_job_id TEXT UNIQUE,
			owner_id TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			frame_assets JSONB NOT NULL DEFAULT '[]',
			image_refs JSONB NOT NULL DEFAULT '[]',
			video_refs JSONB NOT NULL DEFAULT '[]',
			model TEXT NOT NULL,
			ratio TEXT NOT NULL,
			duration_sec INT NOT NULL,
			cost INT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			result_url TEXT NOT NULL DEFAULT '',
			error_class TEXT,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			settled_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs (owner_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs (state);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			owner_id TEXT PRIMARY KEY,
			points INT NOT NULL DEFAULT 0,
			total_videos INT NOT NULL DEFAULT 0,
			referral_code TEXT NOT NULL DEFAULT '',
			referred_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_referral_code
			ON accounts (referral_code) WHERE referral_code <> '';`,
		`CREATE TABLE IF NOT EXISTS points_txns (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			amount INT NOT NULL,
			reason TEXT NOT NULL,
			related_job_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_points_txns_owner ON points_txns (owner_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS promo_redemptions (
			owner_id TEXT NOT NULL,
			code TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner_id, code)
		);`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
