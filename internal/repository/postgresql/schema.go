package postgresql

import (
	"context"
	"fmt"

	"github.com/campus-activity/checkin-engine/internal/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		kind               TEXT NOT NULL CHECK (kind IN ('single_day', 'multi_day')),
		timezone           TEXT NOT NULL DEFAULT '',
		date               DATE,
		time_slots         JSONB NOT NULL DEFAULT '[]',
		location           JSONB,
		day_locations      JSONB NOT NULL DEFAULT '{}',
		slot_locations     JSONB NOT NULL DEFAULT '{}',
		day_slot_locations JSONB NOT NULL DEFAULT '[]',
		schedule           JSONB NOT NULL DEFAULT '[]',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (activity_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS registration_slots (
		activity_id TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		day_number  INT NOT NULL CHECK (day_number > 0),
		slot_key    TEXT NOT NULL,
		PRIMARY KEY (activity_id, user_id, day_number, slot_key),
		FOREIGN KEY (activity_id, user_id) REFERENCES registrations(activity_id, user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		activity_id         TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		day_number          INT NOT NULL,
		slot_key            TEXT NOT NULL,
		direction           TEXT NOT NULL CHECK (direction IN ('start', 'end')),
		check_in_time       TIMESTAMPTZ NOT NULL,
		latitude            DOUBLE PRECISION NOT NULL,
		longitude           DOUBLE PRECISION NOT NULL,
		accuracy            DOUBLE PRECISION NOT NULL DEFAULT 0,
		address             TEXT NOT NULL DEFAULT '',
		photo_url           TEXT NOT NULL,
		status              TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		distance_meters     DOUBLE PRECISION,
		location_valid      BOOLEAN NOT NULL DEFAULT false,
		location_scope      TEXT NOT NULL DEFAULT '',
		minutes_from_target INT NOT NULL DEFAULT 0,
		late                BOOLEAN NOT NULL DEFAULT false,
		justification       TEXT NOT NULL DEFAULT '',
		rejection_reason    TEXT,
		reviewed_by         TEXT,
		reviewed_at         TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (activity_id, user_id, day_number, slot_key, direction)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_records_subject ON attendance_records (activity_id, user_id)`,
}

// Migrate creates the tables the adapters read and write. It is idempotent.
func Migrate(ctx context.Context, db *database.DB) error {
	return WithTransaction(ctx, db, func(ctx context.Context) error {
		q := GetQuerier(ctx, db)
		for _, stmt := range schema {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
