package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// LeaveInput is a student's leave submission.
type LeaveInput struct {
	StudentID    string `json:"student_id" validate:"required"`
	SupervisorID string `json:"supervisor_id"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Category     string `json:"category" validate:"required,max=50"`
	Description  string `json:"description" validate:"required,max=2000"`
	EvidenceFile string `json:"evidence_file" validate:"omitempty,max=500"`
}

// Decision is a supervisor's verdict on a pending request.
type Decision struct {
	Status         LeaveStatus `json:"decision"`
	ResponseReason string      `json:"response_reason"`
	// DeciderID is the acting user; AsAdmin skips the supervisor ownership check.
	DeciderID string `json:"-"`
	AsAdmin   bool   `json:"-"`
}

// ReconcileResult counts the ledger rows touched by one reconciliation.
type ReconcileResult struct {
	Days    int `json:"days"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func addFieldErrors(verr *ValidationError, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		verr.add("_", err.Error())
		return
	}
	for _, fe := range ve {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += " " + fe.Param()
		}
		verr.add(fe.Field(), msg)
	}
}

func (s *Service) parseLeave(in LeaveInput) (LeaveRequest, error) {
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)

	verr := &ValidationError{Kind: ErrInvalidLeave}
	if err := s.validate.Struct(in); err != nil {
		addFieldErrors(verr, err)
	}
	if err := verr.orNil(); err != nil {
		return LeaveRequest{}, err
	}
	start, _ := ParseDate(in.StartDate)
	end, _ := ParseDate(in.EndDate)
	if end.Before(start) {
		verr.add("end_date", "must not be before start_date")
		return LeaveRequest{}, verr
	}
	return LeaveRequest{
		StudentID:    in.StudentID,
		SupervisorID: in.SupervisorID,
		StartDate:    start,
		EndDate:      end,
		Category:     in.Category,
		Description:  in.Description,
		EvidenceFile: in.EvidenceFile,
		Status:       LeavePending,
	}, nil
}

// SubmitLeave stores a pending request after checking the span bound and that
// it does not overlap another non-rejected request of the same student.
func (s *Service) SubmitLeave(ctx context.Context, in LeaveInput) (LeaveRequest, error) {
	req, err := s.parseLeave(in)
	if err != nil {
		return LeaveRequest{}, err
	}
	if n := req.Span().Len(); n > s.maxLeaveDays {
		return LeaveRequest{}, fmt.Errorf("%w: %d days exceeds %d", ErrLeaveSpanTooLong, n, s.maxLeaveDays)
	}

	err = s.store.WithTx(ctx, func(tx Ledger) error {
		// serializes concurrent submissions of the same student
		st, err := tx.LockStudent(ctx, req.StudentID)
		if err != nil {
			return err
		}
		if !st.Active {
			return ErrStudentInactive
		}
		if req.SupervisorID == "" {
			req.SupervisorID = st.SupervisorID
		}
		if req.SupervisorID == "" {
			verr := &ValidationError{Kind: ErrInvalidLeave}
			verr.add("supervisor_id", "student has no supervisor assigned")
			return verr
		}

		existing, err := tx.OverlappingLeave(ctx, req.StudentID, req.Span())
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: request %s (%s to %s, %s)", ErrLeaveOverlap,
				existing[0].ID,
				existing[0].StartDate.Format(time.DateOnly),
				existing[0].EndDate.Format(time.DateOnly),
				existing[0].Status)
		}

		req, err = tx.InsertLeaveRequest(ctx, req)
		return err
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	s.log.Info("leave request submitted",
		zap.String("leave_id", req.ID),
		zap.String("student_id", req.StudentID),
		zap.Int("days", req.Span().Len()))
	return req, nil
}

// DecideLeave moves a pending request to approved or rejected. Approval
// reconciles the ledger in the same transaction; if reconciliation fails the
// status change is rolled back too.
func (s *Service) DecideLeave(ctx context.Context, id string, d Decision) (LeaveRequest, ReconcileResult, error) {
	if d.Status != LeaveApproved && d.Status != LeaveRejected {
		return LeaveRequest{}, ReconcileResult{}, ErrInvalidDecision
	}

	var (
		req LeaveRequest
		res ReconcileResult
	)
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		req, err = tx.LeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if !d.AsAdmin && req.SupervisorID != d.DeciderID {
			return ErrNotSupervisor
		}
		if req.Status != LeavePending {
			return fmt.Errorf("%w: status is %s", ErrLeaveAlreadyDecided, req.Status)
		}

		at := s.now()
		if err := tx.UpdateLeaveDecision(ctx, id, d.Status, d.ResponseReason, d.DeciderID, at); err != nil {
			return err
		}
		req.Status = d.Status
		req.ResponseReason = d.ResponseReason
		req.DecidedBy = d.DeciderID
		req.DecidedAt = &at

		if d.Status != LeaveApproved {
			return nil
		}
		res, err = s.reconcile(ctx, tx, req)
		return err
	})
	if err != nil {
		return LeaveRequest{}, ReconcileResult{}, err
	}

	s.metrics.LeaveDecisions.WithLabelValues(string(d.Status)).Inc()
	s.countReconciled(res)
	s.log.Info("leave request decided",
		zap.String("leave_id", id),
		zap.String("decision", string(d.Status)),
		zap.String("decided_by", d.DeciderID),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated))
	return req, res, nil
}

// Reconcile re-applies an approved request to the ledger. Safe to repeat.
func (s *Service) Reconcile(ctx context.Context, id string) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		req, err := tx.LeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != LeaveApproved {
			return ErrLeaveNotApproved
		}
		res, err = s.reconcile(ctx, tx, req)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.countReconciled(res)
	s.log.Info("leave request reconciled",
		zap.String("leave_id", id),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated))
	return res, nil
}

// reconcile upserts a leave row for every day of req's span using the
// schedule active right now.
func (s *Service) reconcile(ctx context.Context, tx Ledger, req LeaveRequest) (ReconcileResult, error) {
	span := req.Span()
	if !span.Valid() {
		return ReconcileResult{}, ErrInvalidLeave
	}
	if n := span.Len(); n > s.maxLeaveDays {
		return ReconcileResult{}, fmt.Errorf("%w: %d days exceeds %d", ErrLeaveSpanTooLong, n, s.maxLeaveDays)
	}

	active, err := tx.ActiveSchedule(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	var res ReconcileResult
	for day := range span.Days() {
		created, err := tx.UpsertLeaveDay(ctx, req.StudentID, active.ID, day)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("reconcile %s: %w", day.Format(time.DateOnly), err)
		}
		res.Days++
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

func (s *Service) countReconciled(res ReconcileResult) {
	s.metrics.ReconciledDays.WithLabelValues("created").Add(float64(res.Created))
	s.metrics.ReconciledDays.WithLabelValues("updated").Add(float64(res.Updated))
}

// GetLeaveRequest returns one request.
func (s *Service) GetLeaveRequest(ctx context.Context, id string) (LeaveRequest, error) {
	var req LeaveRequest
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		req, err = tx.LeaveRequest(ctx, id)
		return err
	})
	return req, err
}

// ListLeaveRequests returns requests matching f, newest first.
func (s *Service) ListLeaveRequests(ctx context.Context, f LeaveFilter) ([]LeaveRequest, error) {
	var out []LeaveRequest
	err := s.store.WithTx(ctx, func(tx Ledger) error {
		var err error
		out, err = tx.ListLeaveRequests(ctx, f)
		return err
	})
	return out, err
}
