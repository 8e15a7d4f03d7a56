package attendance

import (
	"iter"
	"time"
)

// DateOf truncates t to its calendar date in t's location, returned as
// midnight UTC so dates compare and persist independent of zone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// Span is an inclusive range of calendar dates.
type Span struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether End is not before Start.
func (s Span) Valid() bool {
	return !DateOf(s.End).Before(DateOf(s.Start))
}

// Len is the number of days in the span, 0 when invalid.
func (s Span) Len() int {
	if !s.Valid() {
		return 0
	}
	return int(DateOf(s.End).Sub(DateOf(s.Start)).Hours()/24) + 1
}

// Overlaps reports whether two spans share at least one day.
func (s Span) Overlaps(o Span) bool {
	return !DateOf(s.Start).After(DateOf(o.End)) && !DateOf(o.Start).After(DateOf(s.End))
}

// Days yields every date from Start to End inclusive. Each call starts over.
func (s Span) Days() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !s.Valid() {
			return
		}
		end := DateOf(s.End)
		for d := DateOf(s.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}
