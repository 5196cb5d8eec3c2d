// internal/store/migrate.go
package store

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS opportunities (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		company        TEXT NOT NULL,
		location       TEXT,
		description    TEXT,
		source         TEXT NOT NULL,
		url            TEXT,
		discovered_at  TIMESTAMPTZ NOT NULL,
		score          INT,
		score_reasons  TEXT[],
		priority_tier  INT NOT NULL DEFAULT 0,
		contacted      BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		company          TEXT NOT NULL,
		linkedin_handle  TEXT,
		twitter_handle   TEXT,
		email            TEXT,
		last_activity_at TIMESTAMPTZ,
		confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
		refreshed_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outreach_messages (
		id             TEXT PRIMARY KEY,
		opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
		contact_id     TEXT NOT NULL,
		channel        TEXT NOT NULL,
		body           TEXT NOT NULL,
		generated_at   TIMESTAMPTZ NOT NULL,
		status         TEXT NOT NULL,
		sent_at        TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS engagement_events (
		id             TEXT PRIMARY KEY,
		opportunity_id TEXT NOT NULL,
		company        TEXT,
		channel        TEXT NOT NULL,
		type           TEXT NOT NULL,
		detail         TEXT,
		sentiment      TEXT,
		occurred_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS application_records (
		opportunity_id    TEXT PRIMARY KEY REFERENCES opportunities(id),
		status            TEXT NOT NULL,
		timeline          JSONB NOT NULL DEFAULT '[]'::jsonb,
		follow_up_count   INT NOT NULL DEFAULT 0,
		next_follow_up_at TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cycle_runs (
		run_id       TEXT PRIMARY KEY,
		started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ,
		status       TEXT NOT NULL DEFAULT 'running',
		items_total  INT NOT NULL DEFAULT 0,
		items_done   INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS cycle_items (
		run_id         TEXT NOT NULL REFERENCES cycle_runs(run_id),
		opportunity_id TEXT NOT NULL,
		outcome        TEXT NOT NULL,
		processed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, opportunity_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_opportunities_tier ON opportunities (priority_tier DESC, discovered_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_opportunity ON engagement_events (opportunity_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_records_follow_up ON application_records (next_follow_up_at)`,
}

// Migrate applies the schema. Statements are idempotent so this runs on
// every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
