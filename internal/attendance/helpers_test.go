package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"internattend/internal/geo"
	"internattend/internal/metrics"
)

var wib = time.FixedZone("WIB", 7*3600)

var campus = geo.Point{Latitude: -6.362024, Longitude: 106.824142}

type fixture struct {
	t       *testing.T
	store   *MemoryStore
	svc     *Service
	metrics *metrics.Metrics
	now     time.Time
}

type fixtureOpt func(*Options)

func withoutGeofence() fixtureOpt { return func(o *Options) { o.EnforceGeofence = false } }

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		store:   NewMemoryStore(),
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Date(2024, 1, 10, 7, 0, 0, 0, wib),
	}
	f.store.now = func() time.Time { return f.now }
	o := Options{
		Location:        wib,
		EnforceGeofence: true,
		MaxLeaveDays:    30,
		Now:             func() time.Time { return f.now },
		Metrics:         f.metrics,
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = NewService(f.store, o)
	f.store.PutStudent(Student{ID: "s1", Code: "2110511001", Name: "Ayu", SupervisorID: "sup1", Active: true})
	f.store.PutStudent(Student{ID: "s2", Code: "2110511002", Name: "Budi", SupervisorID: "sup1", Active: true})
	f.store.PutStudent(Student{ID: "s3", Code: "2110511003", Name: "Citra", SupervisorID: "sup2", Active: false})
	return f
}

func (f *fixture) at(date, hhmm string) {
	f.t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, wib)
	if err != nil {
		f.t.Fatal(err)
	}
	f.now = ts
}

func (f *fixture) activate(checkIn, checkOut string, grace int, radius float64) Schedule {
	f.t.Helper()
	s, err := f.svc.ActivateSchedule(context.Background(), ScheduleInput{
		CheckInTime:      checkIn,
		CheckOutTime:     checkOut,
		LateGraceMinutes: grace,
		RadiusMeters:     radius,
		Latitude:         campus.Latitude,
		Longitude:        campus.Longitude,
	}, "admin1")
	if err != nil {
		f.t.Fatalf("activate schedule: %v", err)
	}
	return s
}

func (f *fixture) records(studentID string) []Record {
	f.t.Helper()
	recs, err := f.svc.ListRecords(context.Background(), RecordFilter{StudentID: studentID, Limit: 500})
	if err != nil {
		f.t.Fatal(err)
	}
	return recs
}

func (f *fixture) scan(studentID string, p geo.Point) (ScanOutcome, error) {
	return f.svc.RecordScan(context.Background(), ScanInput{StudentID: studentID, Point: p, DeviceInfo: "Android 14"})
}
