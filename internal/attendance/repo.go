package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ Store     = (*Repository)(nil)
	_ Directory = (*Repository)(nil)
)

// Repository persists the ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx implements Store. Read committed is enough: the day's row is locked
// with FOR UPDATE and (student_id, date) is unique.
func (r *Repository) WithTx(ctx context.Context, fn func(Ledger) error) error {
	if r == nil || r.db == nil {
		return errors.New("attendance: database not configured")
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("attendance: begin: %w", err)
	}
	if err := fn(&pgLedger{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("attendance: commit: %w", mapPGError(err))
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgLedger struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mapPGError turns constraint violations into domain errors.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "uq_attendance_schedules_active" {
				return fmt.Errorf("%w: concurrent schedule activation", ErrInvalidSchedule)
			}
			return fmt.Errorf("%w: %s", ErrDuplicateScan, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrStudentNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

const studentColumns = `id, code, name, COALESCE(supervisor_id, ''), active`

func scanStudent(row rowScanner) (Student, error) {
	var st Student
	if err := row.Scan(&st.ID, &st.Code, &st.Name, &st.SupervisorID, &st.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, err
	}
	return st, nil
}

func (l *pgLedger) Student(ctx context.Context, id string) (Student, error) {
	return scanStudent(l.q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

func (l *pgLedger) LockStudent(ctx context.Context, id string) (Student, error) {
	return scanStudent(l.q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id))
}

func (l *pgLedger) ActiveStudents(ctx context.Context) ([]Student, error) {
	rows, err := l.q.QueryContext(ctx, `SELECT `+studentColumns+` FROM students WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const scheduleColumns = `id, version, check_in_time::text, check_out_time::text, late_grace_minutes,
	radius_meters, center_latitude, center_longitude, is_active, COALESCE(created_by, ''), created_at`

func scanSchedule(row rowScanner) (Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.Version, &s.CheckInTime, &s.CheckOutTime, &s.LateGraceMinutes,
		&s.RadiusMeters, &s.Center.Latitude, &s.Center.Longitude, &s.Active, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNoActiveSchedule
		}
		return Schedule{}, err
	}
	return s, nil
}

func (l *pgLedger) ActiveSchedule(ctx context.Context) (Schedule, error) {
	return scanSchedule(l.q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM attendance_schedules WHERE is_active LIMIT 1`))
}

func (l *pgLedger) Schedule(ctx context.Context, id string) (Schedule, error) {
	return scanSchedule(l.q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM attendance_schedules WHERE id = $1`, id))
}

func (l *pgLedger) AppendSchedule(ctx context.Context, s Schedule) (Schedule, error) {
	// blocks concurrent activations until commit
	if _, err := l.q.ExecContext(ctx, `LOCK TABLE attendance_schedules IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return Schedule{}, err
	}
	if _, err := l.q.ExecContext(ctx, `UPDATE attendance_schedules SET is_active = FALSE WHERE is_active`); err != nil {
		return Schedule{}, err
	}
	s.ID = uuid.NewString()
	s.Active = true
	row := l.q.QueryRowContext(ctx, `
		INSERT INTO attendance_schedules (id, version, check_in_time, check_out_time, late_grace_minutes,
			radius_meters, center_latitude, center_longitude, is_active, created_by)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM attendance_schedules),
			$2::time, $3::time, $4, $5, $6, $7, TRUE, NULLIF($8, ''))
		RETURNING version, created_at
	`, s.ID, s.CheckInTime, s.CheckOutTime, s.LateGraceMinutes,
		s.RadiusMeters, s.Center.Latitude, s.Center.Longitude, s.CreatedBy)
	if err := row.Scan(&s.Version, &s.CreatedAt); err != nil {
		return Schedule{}, mapPGError(err)
	}
	return s, nil
}

func (l *pgLedger) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := l.q.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM attendance_schedules ORDER BY version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const recordColumns = `id, student_id, COALESCE(schedule_id, ''), date, check_in_at, check_out_at,
	check_in_status, presence_status, scan_latitude, scan_longitude, within_radius,
	COALESCE(device_info, ''), created_at, updated_at`

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.StudentID, &r.ScheduleID, &r.Date, &r.CheckInAt, &r.CheckOutAt,
		&r.CheckInStatus, &r.Presence, &r.ScanLatitude, &r.ScanLongitude, &r.WithinRadius,
		&r.DeviceInfo, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	r.Date = DateOf(r.Date)
	return r, nil
}

func (l *pgLedger) RecordForDay(ctx context.Context, studentID string, date time.Time) (Record, error) {
	return scanRecord(l.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE student_id = $1 AND date = $2 FOR UPDATE`,
		studentID, DateOf(date)))
}

func (l *pgLedger) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := l.q.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, schedule_id, date, check_in_at, check_out_at,
			check_in_status, presence_status, scan_latitude, scan_longitude, within_radius, device_info)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING `+recordColumns,
		rec.ID, rec.StudentID, rec.ScheduleID, DateOf(rec.Date), rec.CheckInAt, rec.CheckOutAt,
		rec.CheckInStatus, rec.Presence, rec.ScanLatitude, rec.ScanLongitude, rec.WithinRadius, rec.DeviceInfo)
	out, err := scanRecord(row)
	if err != nil {
		return Record{}, mapPGError(err)
	}
	return out, nil
}

func (l *pgLedger) ApplyCheckIn(ctx context.Context, id string, in CheckIn) (Record, error) {
	return scanRecord(l.q.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET check_in_at = $2, check_in_status = $3, presence_status = 'present',
			scan_latitude = $4, scan_longitude = $5, within_radius = $6,
			device_info = NULLIF($7, ''), schedule_id = COALESCE(NULLIF($8, ''), schedule_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+recordColumns,
		id, in.At, in.Status, in.Point.Latitude, in.Point.Longitude, in.WithinRadius, in.DeviceInfo, in.ScheduleID))
}

func (l *pgLedger) SetCheckOut(ctx context.Context, id string, at time.Time) (Record, error) {
	return scanRecord(l.q.QueryRowContext(ctx, `
		UPDATE attendance_records SET check_out_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+recordColumns, id, at))
}

func (l *pgLedger) UpsertLeaveDay(ctx context.Context, studentID, scheduleID string, date time.Time) (bool, error) {
	var inserted bool
	err := l.q.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, schedule_id, date, presence_status, within_radius)
		VALUES ($1, $2, NULLIF($3, ''), $4, 'leave', TRUE)
		ON CONFLICT (student_id, date) DO UPDATE
			SET presence_status = 'leave', updated_at = NOW()
		RETURNING (xmax = 0)
	`, uuid.NewString(), studentID, scheduleID, DateOf(date)).Scan(&inserted)
	if err != nil {
		return false, mapPGError(err)
	}
	return inserted, nil
}

func (l *pgLedger) InsertAbsentIfMissing(ctx context.Context, studentID, scheduleID string, date time.Time) (bool, error) {
	res, err := l.q.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, schedule_id, date, presence_status, within_radius)
		VALUES ($1, $2, NULLIF($3, ''), $4, 'absent', FALSE)
		ON CONFLICT (student_id, date) DO NOTHING
	`, uuid.NewString(), studentID, scheduleID, DateOf(date))
	if err != nil {
		return false, mapPGError(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (l *pgLedger) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	var (
		args    []any
		clauses []string
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, DateOf(f.From))
		clauses = append(clauses, "date >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, DateOf(f.To))
		clauses = append(clauses, "date <= $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit, offset := normalizePage(f.Limit, f.Offset)
	args = append(args, limit, offset)
	query += " ORDER BY date DESC, student_id LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := l.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const leaveColumns = `id, student_id, supervisor_id, start_date, end_date, category, description,
	COALESCE(evidence_file, ''), status, COALESCE(response_reason, ''), COALESCE(decided_by, ''),
	decided_at, created_at`

func scanLeave(row rowScanner) (LeaveRequest, error) {
	var l LeaveRequest
	err := row.Scan(&l.ID, &l.StudentID, &l.SupervisorID, &l.StartDate, &l.EndDate, &l.Category,
		&l.Description, &l.EvidenceFile, &l.Status, &l.ResponseReason, &l.DecidedBy, &l.DecidedAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LeaveRequest{}, ErrLeaveNotFound
		}
		return LeaveRequest{}, err
	}
	l.StartDate, l.EndDate = DateOf(l.StartDate), DateOf(l.EndDate)
	return l, nil
}

func (l *pgLedger) InsertLeaveRequest(ctx context.Context, req LeaveRequest) (LeaveRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	out, err := scanLeave(l.q.QueryRowContext(ctx, `
		INSERT INTO leave_requests (id, student_id, supervisor_id, start_date, end_date, category,
			description, evidence_file, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING `+leaveColumns,
		req.ID, req.StudentID, req.SupervisorID, DateOf(req.StartDate), DateOf(req.EndDate),
		req.Category, req.Description, req.EvidenceFile, req.Status))
	if err != nil {
		return LeaveRequest{}, mapPGError(err)
	}
	return out, nil
}

func (l *pgLedger) LeaveRequest(ctx context.Context, id string) (LeaveRequest, error) {
	return scanLeave(l.q.QueryRowContext(ctx,
		`SELECT `+leaveColumns+` FROM leave_requests WHERE id = $1 FOR UPDATE`, id))
}

func (l *pgLedger) OverlappingLeave(ctx context.Context, studentID string, span Span) ([]LeaveRequest, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT `+leaveColumns+` FROM leave_requests
		WHERE student_id = $1 AND status <> 'rejected' AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date
	`, studentID, DateOf(span.Start), DateOf(span.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func (l *pgLedger) UpdateLeaveDecision(ctx context.Context, id string, status LeaveStatus, reason, decidedBy string, at time.Time) error {
	res, err := l.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = $2, response_reason = NULLIF($3, ''), decided_by = NULLIF($4, ''), decided_at = $5
		WHERE id = $1
	`, id, status, reason, decidedBy, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaveNotFound
	}
	return nil
}

func (l *pgLedger) ListLeaveRequests(ctx context.Context, f LeaveFilter) ([]LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests`
	var (
		args    []any
		clauses []string
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if f.SupervisorID != "" {
		args = append(args, f.SupervisorID)
		clauses = append(clauses, "supervisor_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit, offset := normalizePage(f.Limit, f.Offset)
	args = append(args, limit, offset)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := l.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func collectLeaves(rows *sql.Rows) ([]LeaveRequest, error) {
	var out []LeaveRequest
	for rows.Next() {
		req, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UpsertStudent implements Directory.
func (r *Repository) UpsertStudent(ctx context.Context, st Student) (string, error) {
	var old sql.NullString
	err := r.db.QueryRowContext(ctx, `
		WITH old AS (SELECT code FROM students WHERE id = $1 FOR UPDATE)
		INSERT INTO students (id, code, name, supervisor_id, active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			supervisor_id = EXCLUDED.supervisor_id,
			active = EXCLUDED.active
		RETURNING (SELECT code FROM old)
	`, st.ID, st.Code, st.Name, st.SupervisorID, st.Active).Scan(&old)
	if err != nil {
		return "", fmt.Errorf("attendance: upsert student %s: %w", st.ID, err)
	}
	return old.String, nil
}
