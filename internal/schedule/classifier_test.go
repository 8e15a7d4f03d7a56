package schedule

import (
	"testing"
	"time"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-01-10 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassifyCheckIn(t *testing.T) {
	scheduled := MustTimeOfDay("08:00")
	cases := []struct {
		observed string
		want     CheckInStatus
	}{
		{"07:50", OnTime},
		{"08:00", OnTime},
		{"08:29", OnTime},
		{"08:30", OnTime},
		{"08:31", Late},
		{"12:00", Late},
	}
	for _, tc := range cases {
		if got := ClassifyCheckIn(at(tc.observed), scheduled, 30); got != tc.want {
			t.Errorf("ClassifyCheckIn(%s) = %s, want %s", tc.observed, got, tc.want)
		}
	}
}

func TestClassifyCheckInSeconds(t *testing.T) {
	scheduled := MustTimeOfDay("08:00")
	observed := at("08:30").Add(time.Second)
	if got := ClassifyCheckIn(observed, scheduled, 30); got != Late {
		t.Fatalf("one second past grace = %s, want late", got)
	}
	if got := ClassifyCheckIn(at("08:00").Add(time.Second), scheduled, 0); got != Late {
		t.Fatalf("zero grace = %s, want late", got)
	}
}

func TestCanCheckOut(t *testing.T) {
	out := MustTimeOfDay("17:00")
	if CanCheckOut(at("16:59"), out) {
		t.Fatal("16:59 should be too early")
	}
	if !CanCheckOut(at("17:00"), out) {
		t.Fatal("17:00 should be allowed")
	}
	if !CanCheckOut(at("17:05"), out) {
		t.Fatal("17:05 should be allowed")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]string{
		"08:00":           "08:00:00",
		"8:05":            "08:05:00",
		"17:30:15":        "17:30:15",
		"08:00:00.000000": "08:00:00",
	}
	for in, want := range cases {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", in, err)
		}
		if got.String() != want {
			t.Errorf("ParseTimeOfDay(%q) = %s, want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "24:00", "08:60", "noon", "1:2:3:4", "08:00abc", "8:0junk", "08:00:00x", "8:5"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q) expected error", bad)
		}
	}
}

func TestTimeOfDayOn(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	day := time.Date(2024, 1, 10, 15, 4, 5, 0, loc)
	got := MustTimeOfDay("08:15").On(day)
	want := time.Date(2024, 1, 10, 8, 15, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("On = %v, want %v", got, want)
	}
}

func TestTimeOfDayScan(t *testing.T) {
	var v TimeOfDay
	if err := v.Scan([]byte("07:45:00")); err != nil {
		t.Fatal(err)
	}
	if v != MustTimeOfDay("07:45") {
		t.Fatalf("Scan = %s", v)
	}
	if err := v.Scan(42); err == nil {
		t.Fatal("expected error for int source")
	}
}
