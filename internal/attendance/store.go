package attendance

import (
	"context"
	"time"
)

// Store runs units of work against the ledger. fn's Ledger must not be used
// after fn returns. A non-nil error from fn rolls back every write.
type Store interface {
	WithTx(ctx context.Context, fn func(Ledger) error) error
}

// Ledger is the persistence contract used inside a transaction.
type Ledger interface {
	// Student returns ErrStudentNotFound when the id is unknown.
	Student(ctx context.Context, id string) (Student, error)
	// LockStudent is Student plus a row lock held until commit.
	LockStudent(ctx context.Context, id string) (Student, error)
	ActiveStudents(ctx context.Context) ([]Student, error)

	// ActiveSchedule returns ErrNoActiveSchedule when none is flagged.
	ActiveSchedule(ctx context.Context) (Schedule, error)
	Schedule(ctx context.Context, id string) (Schedule, error)
	// AppendSchedule clears the current flag and appends sched as the active
	// version, assigning ID, Version and CreatedAt.
	AppendSchedule(ctx context.Context, sched Schedule) (Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)

	// RecordForDay returns ErrRecordNotFound when no row exists and locks the
	// row when it does.
	RecordForDay(ctx context.Context, studentID string, date time.Time) (Record, error)
	// InsertRecord returns ErrDuplicateScan when (student, date) already exists.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	// ApplyCheckIn fills the check-in fields of an existing row and marks it present.
	ApplyCheckIn(ctx context.Context, id string, in CheckIn) (Record, error)
	SetCheckOut(ctx context.Context, id string, at time.Time) (Record, error)
	// UpsertLeaveDay marks (student, date) as leave, creating the row if
	// missing. Existing check-in data is left untouched.
	UpsertLeaveDay(ctx context.Context, studentID, scheduleID string, date time.Time) (created bool, err error)
	// InsertAbsentIfMissing writes an absent row unless one exists.
	InsertAbsentIfMissing(ctx context.Context, studentID, scheduleID string, date time.Time) (inserted bool, err error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)

	InsertLeaveRequest(ctx context.Context, req LeaveRequest) (LeaveRequest, error)
	// LeaveRequest returns ErrLeaveNotFound; the row stays locked until commit.
	LeaveRequest(ctx context.Context, id string) (LeaveRequest, error)
	// OverlappingLeave lists non-rejected requests of the student intersecting span.
	OverlappingLeave(ctx context.Context, studentID string, span Span) ([]LeaveRequest, error)
	UpdateLeaveDecision(ctx context.Context, id string, status LeaveStatus, reason, decidedBy string, at time.Time) error
	ListLeaveRequests(ctx context.Context, f LeaveFilter) ([]LeaveRequest, error)
}

// Directory receives student entries synced from the campus system.
type Directory interface {
	// UpsertStudent returns the code stored before the write, or "" for a new
	// student. A previous code different from st.Code invalidates the QR
	// artifact published under it.
	UpsertStudent(ctx context.Context, st Student) (previousCode string, err error)
}
