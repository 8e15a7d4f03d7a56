package attendance

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"internattend/internal/geo"
	"internattend/internal/metrics"
	"internattend/internal/qrtoken"
	"internattend/internal/scanlock"
	"internattend/internal/schedule"
)

// Options tune Service behaviour. Zero values fall back to defaults.
type Options struct {
	Location        *time.Location
	EnforceGeofence bool
	MaxLeaveDays    int
	ScanLockTTL     time.Duration
	Now             func() time.Time
	Locker          scanlock.Locker
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

// Service coordinates scans, schedule versions and leave reconciliation.
type Service struct {
	store           Store
	loc             *time.Location
	enforceGeofence bool
	maxLeaveDays    int
	lockTTL         time.Duration
	now             func() time.Time
	locker          scanlock.Locker
	metrics         *metrics.Metrics
	log             *zap.Logger
	validate        *validator.Validate
}

// DefaultMaxLeaveDays bounds a single request to roughly one academic term.
const DefaultMaxLeaveDays = 120

// NewService creates a service backed by a store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:           store,
		loc:             opts.Location,
		enforceGeofence: opts.EnforceGeofence,
		maxLeaveDays:    opts.MaxLeaveDays,
		lockTTL:         opts.ScanLockTTL,
		now:             opts.Now,
		locker:          opts.Locker,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
	s.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxLeaveDays <= 0 {
		s.maxLeaveDays = DefaultMaxLeaveDays
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.locker == nil {
		s.locker = scanlock.NewLocal()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Today returns the current calendar date in the service's location.
func (s *Service) Today() time.Time { return DateOf(s.now().In(s.loc)) }

// Phase says which half of the day's lifecycle a scan completed.
type Phase string

const (
	PhaseCheckIn  Phase = "check_in"
	PhaseCheckOut Phase = "check_out"
)

// ScanInput is a verified scan. SubjectCode, when set, must match the
// directory's current code for the student.
type ScanInput struct {
	StudentID   string
	SubjectCode string
	Point       geo.Point
	DeviceInfo  string
}

// ScanOutcome reports what a scan did.
type ScanOutcome struct {
	Phase          Phase   `json:"phase"`
	Record         Record  `json:"record"`
	DistanceMeters float64 `json:"distance_meters"`
	WithinRadius   bool    `json:"within_radius"`
}

// RecordScan is the single write path for scans: the first scan of a day
// checks the student in, the second checks them out. Time is taken from the
// server clock.
func (s *Service) RecordScan(ctx context.Context, in ScanInput) (out ScanOutcome, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		outcome := string(out.Phase)
		if err != nil {
			outcome = Code(err)
			if outcome == "" {
				outcome = "error"
			}
		}
		s.metrics.Scans.WithLabelValues(outcome).Inc()
	}()

	if in.StudentID == "" {
		return ScanOutcome{}, ErrStudentNotFound
	}
	if !in.Point.Valid() {
		return ScanOutcome{}, ErrInvalidLocation
	}

	now := s.now().In(s.loc)
	date := DateOf(now)

	release, err := s.locker.Acquire(ctx, "scan:"+in.StudentID+":"+date.Format(time.DateOnly), s.lockTTL)
	if err != nil {
		if errors.Is(err, scanlock.ErrBusy) {
			return ScanOutcome{}, ErrScanInProgress
		}
		return ScanOutcome{}, err
	}
	defer release()

	err = s.store.WithTx(ctx, func(tx Ledger) error {
		st, err := tx.Student(ctx, in.StudentID)
		if err != nil {
			return err
		}
		if !st.Active {
			return ErrStudentInactive
		}
		if in.SubjectCode != "" && in.SubjectCode != st.Code {
			s.log.Warn("stale QR token presented",
				zap.String("student_id", st.ID), zap.String("token_code", in.SubjectCode))
			return qrtoken.ErrInvalidToken
		}

		active, err := tx.ActiveSchedule(ctx)
		if err != nil {
			return err
		}

		dist, _ := geo.DistanceMeters(in.Point, active.Center)
		within := geo.IsWithin(in.Point, active.Center, active.RadiusMeters)
		out.DistanceMeters = dist
		out.WithinRadius = within
		if !within && s.enforceGeofence {
			return ErrOutOfRange
		}

		rec, err := tx.RecordForDay(ctx, st.ID, date)
		switch {
		case errors.Is(err, ErrRecordNotFound):
			status := schedule.ClassifyCheckIn(now, active.CheckInTime, active.LateGraceMinutes)
			rec, err = tx.InsertRecord(ctx, Record{
				StudentID:     st.ID,
				ScheduleID:    active.ID,
				Date:          date,
				CheckInAt:     &now,
				CheckInStatus: &status,
				Presence:      Present,
				ScanLatitude:  ptr(in.Point.Latitude),
				ScanLongitude: ptr(in.Point.Longitude),
				WithinRadius:  within,
				DeviceInfo:    in.DeviceInfo,
			})
			if err != nil {
				return err
			}
			out.Phase, out.Record = PhaseCheckIn, rec
			return nil
		case err != nil:
			return err
		case rec.Presence == OnLeave:
			return ErrOnLeave
		case rec.CheckInAt == nil:
			// materialized absent row: the scan is still the day's check-in
			status := schedule.ClassifyCheckIn(now, active.CheckInTime, active.LateGraceMinutes)
			rec, err = tx.ApplyCheckIn(ctx, rec.ID, CheckIn{
				ScheduleID:   active.ID,
				At:           now,
				Status:       status,
				Point:        in.Point,
				WithinRadius: within,
				DeviceInfo:   in.DeviceInfo,
			})
			if err != nil {
				return err
			}
			out.Phase, out.Record = PhaseCheckIn, rec
			return nil
		case rec.CheckOutAt != nil:
			return ErrAlreadyComplete
		}

		checkOut := active.CheckOutTime
		if rec.ScheduleID != "" && rec.ScheduleID != active.ID {
			stamped, err := tx.Schedule(ctx, rec.ScheduleID)
			if err != nil {
				return err
			}
			checkOut = stamped.CheckOutTime
		}
		if !schedule.CanCheckOut(now, checkOut) {
			return ErrTooEarly
		}
		rec, err = tx.SetCheckOut(ctx, rec.ID, now)
		if err != nil {
			return err
		}
		out.Phase, out.Record = PhaseCheckOut, rec
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateScan) {
			s.log.Warn("concurrent first scan rejected by unique constraint",
				zap.String("student_id", in.StudentID), zap.Time("date", date))
		}
		return ScanOutcome{DistanceMeters: out.DistanceMeters, WithinRadius: out.WithinRadius}, err
	}

	s.log.Info("scan recorded",
		zap.String("student_id", in.StudentID),
		zap.String("phase", string(out.Phase)),
		zap.Float64("distance_m", out.DistanceMeters),
		zap.Bool("within_radius", out.WithinRadius))
	return out, nil
}

// ListRecords returns ledger rows matching f, newest first.
func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	var out []Record
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		out, err = tx.ListRecords(ctx, f)
		return err
	})
	return out, err
}

// Student returns a directory entry.
func (s *Service) Student(ctx context.Context, id string) (Student, error) {
	var st Student
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		st, err = tx.Student(ctx, id)
		return err
	})
	return st, err
}
