// Package worker holds the background jobs run by cmd/worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/qrtoken"
	"internattend/internal/queue"
)

// StudentSource looks up directory entries.
type StudentSource interface {
	Student(ctx context.Context, id string) (attendance.Student, error)
}

// Regenerator re-renders a student's QR artifact. Inactive students have
// their artifacts removed instead. An artifact left under a job's previous
// code is removed in both cases.
type Regenerator struct {
	Students  StudentSource
	Codec     *qrtoken.Codec
	Artifacts qrtoken.ArtifactStore
	Size      int
	Log       *zap.Logger
}

// Handle processes one job. Jobs for unknown students are dropped.
func (r *Regenerator) Handle(ctx context.Context, job queue.Job) error {
	if job.Kind != queue.KindRegenerateQR {
		return fmt.Errorf("worker: unsupported job kind %q", job.Kind)
	}
	st, err := r.Students.Student(ctx, job.SubjectID)
	if errors.Is(err, attendance.ErrStudentNotFound) {
		r.Log.Warn("dropping job for unknown student", zap.String("student_id", job.SubjectID))
		return nil
	}
	if err != nil {
		return err
	}

	if !st.Active {
		if err := r.Artifacts.Remove(ctx, st.Code); err != nil {
			return fmt.Errorf("worker: retire artifact for %s: %w", st.ID, err)
		}
		if err := r.retirePrevious(ctx, job, st); err != nil {
			return err
		}
		r.Log.Info("qr artifact retired", zap.String("student_id", st.ID))
		return nil
	}

	tok := r.Codec.Issue(st.ID, st.Code)
	png, err := r.Codec.Render(tok, r.Size)
	if err != nil {
		return err
	}
	loc, err := r.Artifacts.Save(ctx, tok, png)
	if err != nil {
		return fmt.Errorf("worker: save artifact for %s: %w", st.ID, err)
	}
	if err := r.retirePrevious(ctx, job, st); err != nil {
		return err
	}
	r.Log.Info("qr artifact regenerated",
		zap.String("student_id", st.ID),
		zap.String("location", loc),
		zap.Duration("queued_for", time.Since(job.EnqueuedAt)))
	return nil
}

// retirePrevious removes the artifact published under the code the student
// held before a directory sync renamed them.
func (r *Regenerator) retirePrevious(ctx context.Context, job queue.Job, st attendance.Student) error {
	if job.PreviousCode == "" || qrtoken.SafeCode(job.PreviousCode) == qrtoken.SafeCode(st.Code) {
		return nil
	}
	if err := r.Artifacts.Remove(ctx, job.PreviousCode); err != nil {
		return fmt.Errorf("worker: retire previous artifact for %s: %w", st.ID, err)
	}
	r.Log.Info("previous qr artifact retired",
		zap.String("student_id", st.ID), zap.String("previous_code", job.PreviousCode))
	return nil
}

// Consume runs handle for every job until jobs is closed. Failures are
// logged; the job is not retried.
func Consume(ctx context.Context, jobs <-chan queue.Job, handle func(context.Context, queue.Job) error, log *zap.Logger) int {
	processed := 0
	for job := range jobs {
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := handle(jobCtx, job); err != nil {
			log.Error("job failed",
				zap.String("kind", job.Kind),
				zap.String("subject_id", job.SubjectID),
				zap.Error(err))
		}
		cancel()
		processed++
	}
	return processed
}
