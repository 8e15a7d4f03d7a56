package attendance

import (
	"context"
	"errors"
	"testing"

	"internattend/internal/schedule"
)

func TestActivateScheduleKeepsOneActive(t *testing.T) {
	f := newFixture(t)
	first := f.activate("08:00", "17:00", 30, 100)
	second := f.activate("07:30", "16:30", 15, 250)

	if first.Version != 1 || second.Version != 2 {
		t.Fatalf("versions = %d, %d", first.Version, second.Version)
	}
	active, err := f.svc.ActiveSchedule(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != second.ID || active.CheckInTime != schedule.MustTimeOfDay("07:30") {
		t.Fatalf("active = %+v", active)
	}

	history, err := f.svc.ScheduleHistory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != second.ID {
		t.Fatalf("history = %+v", history)
	}
	activeCount := 0
	for _, s := range history {
		if s.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active versions = %d", activeCount)
	}
	if history[1].CheckOutTime != schedule.MustTimeOfDay("17:00") {
		t.Fatal("old versions must stay intact")
	}
}

func TestActivateScheduleValidation(t *testing.T) {
	cases := []struct {
		name  string
		in    ScheduleInput
		field string
	}{
		{"checkout before checkin", ScheduleInput{CheckInTime: "17:00", CheckOutTime: "08:00", RadiusMeters: 100}, "check_out_time"},
		{"bad time", ScheduleInput{CheckInTime: "8am", CheckOutTime: "17:00", RadiusMeters: 100}, "check_in_time"},
		{"trailing text", ScheduleInput{CheckInTime: "08:00abc", CheckOutTime: "17:00", RadiusMeters: 100}, "check_in_time"},
		{"zero radius", ScheduleInput{CheckInTime: "08:00", CheckOutTime: "17:00"}, "radius_meters"},
		{"negative grace", ScheduleInput{CheckInTime: "08:00", CheckOutTime: "17:00", RadiusMeters: 100, LateGraceMinutes: -1}, "late_grace_minutes"},
		{"latitude", ScheduleInput{CheckInTime: "08:00", CheckOutTime: "17:00", RadiusMeters: 100, Latitude: 95}, "latitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.ActivateSchedule(context.Background(), tc.in, "admin1")
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("err = %v, want ErrInvalidSchedule", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.FieldErrors[tc.field] == "" {
				t.Fatalf("missing %s field error: %+v", tc.field, verr)
			}
			if _, err := f.svc.ActiveSchedule(context.Background()); !errors.Is(err, ErrNoActiveSchedule) {
				t.Fatal("invalid input must not create a version")
			}
		})
	}
}
