package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AbsenceMaterializer is the part of the attendance service the nightly job
// needs.
type AbsenceMaterializer interface {
	Today() time.Time
	MaterializeAbsences(ctx context.Context, date time.Time) (int, error)
}

// AbsenceJob returns the cron body that writes absent rows for today.
func AbsenceJob(svc AbsenceMaterializer, timeout time.Duration, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		day := svc.Today()
		n, err := svc.MaterializeAbsences(ctx, day)
		if err != nil {
			log.Error("absence materialization failed",
				zap.String("date", day.Format(time.DateOnly)), zap.Error(err))
			return
		}
		log.Info("absence materialization done",
			zap.String("date", day.Format(time.DateOnly)), zap.Int("inserted", n))
	}
}

// NewCron builds a scheduler in loc that skips a run while the previous one is
// still going.
func NewCron(loc *time.Location, log *zap.Logger) *cron.Cron {
	l := cronLogger{log.Sugar()}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
