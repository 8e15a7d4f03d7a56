package attendance

import (
	"errors"

	"internattend/internal/qrtoken"
)

var (
	ErrInvalidLocation     = errors.New("location coordinates are invalid")
	ErrOutOfRange          = errors.New("your location is out of range")
	ErrNoActiveSchedule    = errors.New("no active attendance schedule")
	ErrStudentNotFound     = errors.New("student not found")
	ErrStudentInactive     = errors.New("student is inactive")
	ErrTooEarly            = errors.New("too early to check out")
	ErrAlreadyComplete     = errors.New("attendance for today is already complete")
	ErrOnLeave             = errors.New("you are on approved leave today")
	ErrDuplicateScan       = errors.New("attendance record already exists for this day")
	ErrScanInProgress      = errors.New("another scan for this student is in progress")
	ErrLeaveOverlap        = errors.New("leave request overlaps an existing one")
	ErrLeaveSpanTooLong    = errors.New("leave request span is too long")
	ErrInvalidLeave        = errors.New("leave request is invalid")
	ErrLeaveNotFound       = errors.New("leave request not found")
	ErrLeaveAlreadyDecided = errors.New("leave request has already been decided")
	ErrLeaveNotApproved    = errors.New("leave request is not approved")
	ErrInvalidDecision     = errors.New("decision must be approved or rejected")
	ErrNotSupervisor       = errors.New("only the assigned supervisor can decide this request")
	ErrInvalidSchedule     = errors.New("schedule settings are invalid")
	ErrFutureDate          = errors.New("date is in the future")

	// ErrRecordNotFound is internal to the ledger contract: no row for the day.
	ErrRecordNotFound = errors.New("attendance record not found")
)

var codes = []struct {
	err  error
	code string
}{
	{qrtoken.ErrInvalidToken, "invalid_qr"},
	{ErrInvalidLocation, "invalid_location"},
	{ErrOutOfRange, "out_of_range"},
	{ErrNoActiveSchedule, "no_active_schedule"},
	{ErrStudentNotFound, "student_not_found"},
	{ErrStudentInactive, "student_inactive"},
	{ErrTooEarly, "too_early_checkout"},
	{ErrAlreadyComplete, "already_complete"},
	{ErrOnLeave, "on_leave"},
	{ErrDuplicateScan, "duplicate_scan"},
	{ErrScanInProgress, "scan_in_progress"},
	{ErrLeaveOverlap, "leave_overlap"},
	{ErrLeaveSpanTooLong, "leave_span_too_long"},
	{ErrInvalidLeave, "invalid_leave"},
	{ErrLeaveNotFound, "leave_not_found"},
	{ErrLeaveAlreadyDecided, "leave_already_decided"},
	{ErrLeaveNotApproved, "leave_not_approved"},
	{ErrInvalidDecision, "invalid_decision"},
	{ErrNotSupervisor, "not_supervisor"},
	{ErrInvalidSchedule, "invalid_schedule"},
	{ErrFutureDate, "future_date"},
	{ErrRecordNotFound, "record_not_found"},
}

// Code returns the stable reason code for a known error, or "" for anything
// unexpected (infra failures).
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ValidationError carries field level problems for leave and schedule input.
type ValidationError struct {
	Kind        error
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || v.Kind == nil {
		return "validation failed"
	}
	return v.Kind.Error()
}

// Unwrap lets errors.Is match the kind.
func (v *ValidationError) Unwrap() error { return v.Kind }

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) orNil() error {
	if v == nil || len(v.FieldErrors) == 0 {
		return nil
	}
	return v
}
