package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MaterializeAbsences writes an explicit absent row for every active student
// with no record on date, so reports never infer absence from a missing row.
// Running it twice for the same date inserts nothing the second time.
func (s *Service) MaterializeAbsences(ctx context.Context, date time.Time) (int, error) {
	day := DateOf(date)
	if day.After(s.Today()) {
		return 0, ErrFutureDate
	}

	inserted := 0
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		active, err := tx.ActiveSchedule(ctx)
		if err != nil {
			return err
		}
		students, err := tx.ActiveStudents(ctx)
		if err != nil {
			return err
		}
		for _, st := range students {
			ok, err := tx.InsertAbsentIfMissing(ctx, st.ID, active.ID, day)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.AbsentsWritten.Add(float64(inserted))
	s.log.Info("absences materialized",
		zap.String("date", day.Format(time.DateOnly)),
		zap.Int("inserted", inserted))
	return inserted, nil
}
