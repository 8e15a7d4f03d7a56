package attendance

import (
	"context"

	"go.uber.org/zap"

	"internattend/internal/geo"
	"internattend/internal/schedule"
)

// ScheduleInput is an administrator's new attendance settings.
type ScheduleInput struct {
	CheckInTime      string  `json:"check_in_time" validate:"required"`
	CheckOutTime     string  `json:"check_out_time" validate:"required"`
	LateGraceMinutes int     `json:"late_grace_minutes" validate:"gte=0,lte=720"`
	RadiusMeters     float64 `json:"radius_meters" validate:"gt=0"`
	Latitude         float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

func (s *Service) parseSchedule(in ScheduleInput) (Schedule, error) {
	verr := &ValidationError{Kind: ErrInvalidSchedule}
	if err := s.validate.Struct(in); err != nil {
		addFieldErrors(verr, err)
	}
	checkIn, err := schedule.ParseTimeOfDay(in.CheckInTime)
	if err != nil && in.CheckInTime != "" {
		verr.add("check_in_time", "must be HH:MM or HH:MM:SS")
	}
	checkOut, err := schedule.ParseTimeOfDay(in.CheckOutTime)
	if err != nil && in.CheckOutTime != "" {
		verr.add("check_out_time", "must be HH:MM or HH:MM:SS")
	}
	if verr.FieldErrors["check_in_time"] == "" && verr.FieldErrors["check_out_time"] == "" && checkOut <= checkIn {
		verr.add("check_out_time", "must be after check_in_time")
	}
	center := geo.Point{Latitude: in.Latitude, Longitude: in.Longitude}
	if !center.Valid() {
		verr.add("center", "coordinates out of range")
	}
	if err := verr.orNil(); err != nil {
		return Schedule{}, err
	}
	return Schedule{
		CheckInTime:      checkIn,
		CheckOutTime:     checkOut,
		LateGraceMinutes: in.LateGraceMinutes,
		RadiusMeters:     in.RadiusMeters,
		Center:           center,
	}, nil
}

// ActivateSchedule appends a new schedule version and makes it the only
// active one. The flag swap and the insert commit together.
func (s *Service) ActivateSchedule(ctx context.Context, in ScheduleInput, actor string) (Schedule, error) {
	sched, err := s.parseSchedule(in)
	if err != nil {
		return Schedule{}, err
	}
	sched.CreatedBy = actor

	err = s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		sched, err = tx.AppendSchedule(ctx, sched)
		return err
	})
	if err != nil {
		return Schedule{}, err
	}

	s.metrics.ScheduleChanges.Inc()
	s.log.Info("attendance schedule activated",
		zap.String("schedule_id", sched.ID),
		zap.Int64("version", sched.Version),
		zap.String("actor", actor))
	return sched, nil
}

// ActiveSchedule returns the current version or ErrNoActiveSchedule.
func (s *Service) ActiveSchedule(ctx context.Context) (Schedule, error) {
	var sched Schedule
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		sched, err = tx.ActiveSchedule(ctx)
		return err
	})
	return sched, err
}

// ScheduleHistory returns every version, newest first.
func (s *Service) ScheduleHistory(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		out, err = tx.ListSchedules(ctx)
		return err
	})
	return out, err
}
