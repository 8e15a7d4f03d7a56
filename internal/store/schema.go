package store

import (
	"context"
	"fmt"
)

// schema is idempotent; Migrate runs it on every start.
const schema = `
CREATE TABLE IF NOT EXISTS students (
	id             TEXT PRIMARY KEY,
	code           TEXT UNIQUE NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	supervisor_id  TEXT,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_schedules (
	id                  TEXT PRIMARY KEY,
	version             BIGINT UNIQUE NOT NULL,
	check_in_time       TIME NOT NULL,
	check_out_time      TIME NOT NULL,
	late_grace_minutes  INTEGER NOT NULL CHECK (late_grace_minutes >= 0),
	radius_meters       DOUBLE PRECISION NOT NULL CHECK (radius_meters > 0),
	center_latitude     DOUBLE PRECISION NOT NULL CHECK (center_latitude BETWEEN -90 AND 90),
	center_longitude    DOUBLE PRECISION NOT NULL CHECK (center_longitude BETWEEN -180 AND 180),
	is_active           BOOLEAN NOT NULL DEFAULT FALSE,
	created_by          TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (check_out_time > check_in_time)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_schedules_active
	ON attendance_schedules (is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS attendance_records (
	id               TEXT PRIMARY KEY,
	student_id       TEXT NOT NULL REFERENCES students(id),
	schedule_id      TEXT REFERENCES attendance_schedules(id),
	date             DATE NOT NULL,
	check_in_at      TIMESTAMPTZ,
	check_out_at     TIMESTAMPTZ,
	check_in_status  TEXT CHECK (check_in_status IN ('on_time', 'late')),
	presence_status  TEXT NOT NULL CHECK (presence_status IN ('present', 'leave', 'absent')),
	scan_latitude    DOUBLE PRECISION,
	scan_longitude   DOUBLE PRECISION,
	within_radius    BOOLEAN NOT NULL DEFAULT FALSE,
	device_info      TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT uq_attendance_records_student_date UNIQUE (student_id, date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_records_date ON attendance_records (date);

CREATE TABLE IF NOT EXISTS leave_requests (
	id               TEXT PRIMARY KEY,
	student_id       TEXT NOT NULL REFERENCES students(id),
	supervisor_id    TEXT NOT NULL,
	start_date       DATE NOT NULL,
	end_date         DATE NOT NULL,
	category         TEXT NOT NULL,
	description      TEXT NOT NULL,
	evidence_file    TEXT,
	status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
	response_reason  TEXT,
	decided_by       TEXT,
	decided_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_leave_requests_student ON leave_requests (student_id, start_date);
`

// Migrate creates the tables the engine needs.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
