// Package schedule classifies scan instants against a daily attendance window.
package schedule

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// CheckInStatus is the timing classification of a check-in.
type CheckInStatus string

const (
	OnTime CheckInStatus = "on_time"
	Late   CheckInStatus = "late"
)

// TimeOfDay is a wall-clock time stored as seconds since midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("schedule: invalid time %02d:%02d:%02d", hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// MustTimeOfDay is like ParseTimeOfDay but panics on error. Intended for tests
// and constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("schedule: invalid time %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// Of returns the time-of-day of t in t's own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

// On places the time-of-day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(t) * time.Second)
}

// String formats as HH:MM:SS.
func (t TimeOfDay) String() string {
	v := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v%3600)/60, v%60)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) { return t.String(), nil }

// Scan implements sql.Scanner for TIME columns read as text.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case time.Time:
		*t = Of(v)
		return nil
	default:
		return fmt.Errorf("schedule: cannot scan %T into TimeOfDay", src)
	}
}

// ClassifyCheckIn compares the time-of-day of observed against scheduled.
// Anything up to and including graceMinutes after scheduled is on time.
func ClassifyCheckIn(observed time.Time, scheduled TimeOfDay, graceMinutes int) CheckInStatus {
	at := Of(observed)
	if at <= scheduled {
		return OnTime
	}
	diff := time.Duration(at-scheduled) * time.Second
	if diff > time.Duration(graceMinutes)*time.Minute {
		return Late
	}
	return OnTime
}

// CanCheckOut reports whether observed is at or after the scheduled checkout.
func CanCheckOut(observed time.Time, scheduledCheckOut TimeOfDay) bool {
	return Of(observed) >= scheduledCheckOut
}

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < secondsPerDay }
