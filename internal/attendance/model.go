package attendance

import (
	"time"

	"internattend/internal/geo"
	"internattend/internal/schedule"
)

// PresenceStatus is what a day's record says about the student.
type PresenceStatus string

const (
	Present PresenceStatus = "present"
	OnLeave PresenceStatus = "leave"
	Absent  PresenceStatus = "absent"
)

// LeaveStatus is the lifecycle state of a leave request.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// Student is the directory view the engine needs.
type Student struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	SupervisorID string `json:"supervisor_id,omitempty"`
	Active       bool   `json:"active"`
}

// Schedule is one version of the attendance settings. Versions are appended,
// never edited; exactly one is active.
type Schedule struct {
	ID               string             `json:"id"`
	Version          int64              `json:"version"`
	CheckInTime      schedule.TimeOfDay `json:"check_in_time"`
	CheckOutTime     schedule.TimeOfDay `json:"check_out_time"`
	LateGraceMinutes int                `json:"late_grace_minutes"`
	RadiusMeters     float64            `json:"radius_meters"`
	Center           geo.Point          `json:"center"`
	Active           bool               `json:"is_active"`
	CreatedBy        string             `json:"created_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Record is the single ledger row for a student on a calendar date.
type Record struct {
	ID            string                  `json:"id"`
	StudentID     string                  `json:"student_id"`
	ScheduleID    string                  `json:"schedule_id,omitempty"`
	Date          time.Time               `json:"date"`
	CheckInAt     *time.Time              `json:"check_in_at,omitempty"`
	CheckOutAt    *time.Time              `json:"check_out_at,omitempty"`
	CheckInStatus *schedule.CheckInStatus `json:"check_in_status,omitempty"`
	Presence      PresenceStatus          `json:"presence_status"`
	ScanLatitude  *float64                `json:"scan_latitude,omitempty"`
	ScanLongitude *float64                `json:"scan_longitude,omitempty"`
	WithinRadius  bool                    `json:"within_radius"`
	DeviceInfo    string                  `json:"device_info,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// CheckIn describes the fields written by a first scan. ScheduleID restamps
// the row with the version that classified the scan.
type CheckIn struct {
	ScheduleID   string
	At           time.Time
	Status       schedule.CheckInStatus
	Point        geo.Point
	WithinRadius bool
	DeviceInfo   string
}

// LeaveRequest is a student's request for an excused absence span.
type LeaveRequest struct {
	ID             string      `json:"id"`
	StudentID      string      `json:"student_id"`
	SupervisorID   string      `json:"supervisor_id"`
	StartDate      time.Time   `json:"start_date"`
	EndDate        time.Time   `json:"end_date"`
	Category       string      `json:"category"`
	Description    string      `json:"description"`
	EvidenceFile   string      `json:"evidence_file,omitempty"`
	Status         LeaveStatus `json:"status"`
	ResponseReason string      `json:"response_reason,omitempty"`
	DecidedBy      string      `json:"decided_by,omitempty"`
	DecidedAt      *time.Time  `json:"decided_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Span returns the request's inclusive date range.
func (l LeaveRequest) Span() Span { return Span{Start: l.StartDate, End: l.EndDate} }

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	StudentID string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// LeaveFilter narrows ListLeaveRequests.
type LeaveFilter struct {
	StudentID    string
	SupervisorID string
	Status       LeaveStatus
	Limit        int
	Offset       int
}

func ptr[T any](v T) *T { return &v }
