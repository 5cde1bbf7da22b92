package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_stages (
		key                 TEXT PRIMARY KEY,
		display_name        TEXT NOT NULL,
		sort_order          INT NOT NULL,
		wip_limit           INT NULL,
		warning_days        INT NULL,
		critical_days       INT NULL,
		default_probability INT NOT NULL DEFAULT 0,
		is_won_terminal     BOOLEAN NOT NULL DEFAULT false,
		is_lost_terminal    BOOLEAN NOT NULL DEFAULT false,
		sales_stage         TEXT NOT NULL DEFAULT '',
		next_stages         TEXT[] NOT NULL DEFAULT '{}',
		auto_tasks          JSONB NOT NULL DEFAULT '[]',
		CONSTRAINT pipeline_stages_sort_order_key UNIQUE (sort_order) DEFERRABLE INITIALLY DEFERRED
	)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL DEFAULT '',
		amount                 NUMERIC(18,2) NOT NULL DEFAULT 0,
		assigned_user_id       TEXT NOT NULL DEFAULT '',
		pipeline_stage         TEXT NULL REFERENCES pipeline_stages(key),
		stage_entered_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		probability            INT NOT NULL DEFAULT 0,
		probability_overridden BOOLEAN NOT NULL DEFAULT false,
		health_score           INT NOT NULL DEFAULT 50,
		status                 TEXT NOT NULL DEFAULT 'open',
		sales_stage            TEXT NOT NULL DEFAULT '',
		last_activity_at       TIMESTAMPTZ NULL,
		version                BIGINT NOT NULL DEFAULT 0,
		deleted                BOOLEAN NOT NULL DEFAULT false,
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_pipeline_stage ON deals (pipeline_stage) WHERE deleted = false`,
	`CREATE TABLE IF NOT EXISTS pipeline_stage_history (
		id               UUID PRIMARY KEY,
		deal_id          TEXT NOT NULL REFERENCES deals(id),
		from_stage       TEXT NULL,
		to_stage         TEXT NOT NULL,
		changed_by       TEXT NOT NULL,
		changed_at       TIMESTAMPTZ NOT NULL,
		reason           TEXT NULL,
		overrode_warning BOOLEAN NOT NULL DEFAULT false,
		regression       BOOLEAN NOT NULL DEFAULT false,
		archived_at      TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_history_deal ON pipeline_stage_history (deal_id, changed_at)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		creator_id  TEXT NOT NULL DEFAULT '',
		assignee_id TEXT NOT NULL DEFAULT '',
		entity_id   TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		stage_key   TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date    TIMESTAMPTZ NULL,
		priority    TEXT NOT NULL DEFAULT 'normal',
		status      TEXT NOT NULL DEFAULT 'new',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_entity ON tasks (entity_type, entity_id)`,
}

// Migrate creates the pipeline tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
