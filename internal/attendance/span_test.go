package attendance

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func collect(s Span) []string {
	var out []string
	for d := range s.Days() {
		out = append(out, d.Format(time.DateOnly))
	}
	return out
}

func TestSpanDays(t *testing.T) {
	s := Span{Start: day("2024-01-30"), End: day("2024-02-02")}
	got := collect(s)
	want := []string{"2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02"}
	if len(got) != len(want) {
		t.Fatalf("Days = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Days = %v, want %v", got, want)
		}
	}
	if s.Len() != 4 {
		t.Fatalf("Len = %d, want 4", s.Len())
	}
	// restartable
	if again := collect(s); len(again) != 4 {
		t.Fatalf("second iteration yielded %d days", len(again))
	}
}

func TestSpanSingleDayAndInvalid(t *testing.T) {
	one := Span{Start: day("2024-01-10"), End: day("2024-01-10")}
	if got := collect(one); len(got) != 1 || one.Len() != 1 {
		t.Fatalf("single day span = %v", got)
	}
	bad := Span{Start: day("2024-01-11"), End: day("2024-01-10")}
	if bad.Valid() || bad.Len() != 0 || len(collect(bad)) != 0 {
		t.Fatal("reversed span should be empty")
	}
}

func TestSpanEarlyBreak(t *testing.T) {
	s := Span{Start: day("2024-01-01"), End: day("2024-12-31")}
	n := 0
	for range s.Days() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("iterated %d", n)
	}
	if s.Len() != 366 {
		t.Fatalf("leap year Len = %d", s.Len())
	}
}

func TestSpanOverlaps(t *testing.T) {
	base := Span{Start: day("2024-02-03"), End: day("2024-02-04")}
	cases := []struct {
		other Span
		want  bool
	}{
		{Span{day("2024-02-01"), day("2024-02-05")}, true},
		{Span{day("2024-02-04"), day("2024-02-06")}, true},
		{Span{day("2024-02-01"), day("2024-02-03")}, true},
		{Span{day("2024-02-05"), day("2024-02-06")}, false},
		{Span{day("2024-01-30"), day("2024-02-02")}, false},
	}
	for _, tc := range cases {
		if got := base.Overlaps(tc.other); got != tc.want {
			t.Errorf("Overlaps(%v) = %v, want %v", collect(tc.other), got, tc.want)
		}
		if got := tc.other.Overlaps(base); got != tc.want {
			t.Errorf("symmetric Overlaps(%v) = %v, want %v", collect(tc.other), got, tc.want)
		}
	}
}

func TestDateOfUsesLocalCalendarDay(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	// 2024-01-10 01:30 in Jakarta is still 2024-01-09 in UTC
	local := time.Date(2024, 1, 10, 1, 30, 0, 0, wib)
	if got := DateOf(local); !got.Equal(day("2024-01-10")) {
		t.Fatalf("DateOf = %v", got)
	}
}
