package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appealflow/appealflow/internal/domain/patient"
	"github.com/appealflow/appealflow/pkg/clock"
)

// defaultResponseWindowDays is how long after a denial a response is
// assumed due when the payer did not state a deadline.
const defaultResponseWindowDays = 30

type Service struct {
	disputes Repository
	patients patient.Repository
	clk      clock.Clock
}

func NewService(disputes Repository, patients patient.Repository, clk clock.Clock) *Service {
	return &Service{disputes: disputes, patients: patients, clk: clk}
}

// Create validates the request shape, applies creation defaults, and
// persists the dispute. Validation state and flags always start empty;
// callers cannot inject them.
func (s *Service) Create(ctx context.Context, d *Dispute) error {
	if d.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if d.CreatedBy == uuid.Nil {
		return fmt.Errorf("%w: created_by is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.Request.RequestedService) == "" {
		return fmt.Errorf("%w: requested_service is required", ErrInvalidInput)
	}
	if d.Denial.DenialDate.IsZero() {
		return fmt.Errorf("%w: denial_date is required", ErrInvalidInput)
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if !validStatuses[d.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidInput, d.Status)
	}
	if d.Request.Urgency == "" {
		d.Request.Urgency = UrgencyRoutine
	}
	if !validUrgencies[d.Request.Urgency] {
		return fmt.Errorf("%w: invalid urgency %q", ErrInvalidInput, d.Request.Urgency)
	}
	if d.Denial.DenialType == "" {
		d.Denial.DenialType = DenialOther
	}
	if !validDenialTypes[d.Denial.DenialType] {
		return fmt.Errorf("%w: invalid denial_type %q", ErrInvalidInput, d.Denial.DenialType)
	}
	if d.Deadlines.ResponseDeadline.IsZero() {
		d.Deadlines.ResponseDeadline = d.Denial.DenialDate.AddDate(0, 0, defaultResponseWindowDays)
	}
	d.Deadlines.Flags = nil
	d.Validation = Validation{OverallStatus: ValidationPending}
	return s.disputes.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dispute, error) {
	return s.disputes.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, patientID uuid.UUID, limit, offset int) ([]*Dispute, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrInvalidInput, status)
	}
	return s.disputes.List(ctx, status, patientID, limit, offset)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.disputes.SoftDelete(ctx, id)
}

// Validate runs the pre-submission rule battery against the dispute
// and persists the outcome. A missing patient record is not an error;
// the affected checks report it as failures.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (*Dispute, ValidationOutcome, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, ValidationOutcome{}, err
	}
	now := s.clk.Now()

	snapshot, err := s.patients.GetByID(ctx, d.PatientID)
	if err != nil && !errors.Is(err, patient.ErrNotFound) {
		return nil, ValidationOutcome{}, fmt.Errorf("load patient: %w", err)
	}

	history, err := s.disputes.ListByPatient(ctx, d.PatientID, now.Add(-historyWindow))
	if err != nil {
		return nil, ValidationOutcome{}, fmt.Errorf("load dispute history: %w", err)
	}

	outcome := RunPreSubmissionValidation(d, CheckInput{Patient: snapshot, History: history, Now: now})
	if err := s.disputes.Update(ctx, d); err != nil {
		return nil, ValidationOutcome{}, err
	}
	return d, outcome, nil
}

// DeadlineUpdate carries the deadline fields a caller may change. A
// nil field is left untouched.
type DeadlineUpdate struct {
	ResponseDeadline       *time.Time `json:"response_deadline"`
	UrgentResponseDeadline *time.Time `json:"urgent_response_deadline"`
	ExternalReviewDeadline *time.Time `json:"external_review_deadline"`
}

// UpdateDeadlines applies a deadline edit. Every open flag is resolved
// before reconciliation reruns, so no flag referencing the old date
// can survive; a re-raised flag is a new flag and may re-notify.
func (s *Service) UpdateDeadlines(ctx context.Context, id uuid.UUID, upd DeadlineUpdate) (*Dispute, error) {
	if upd.ResponseDeadline == nil && upd.UrgentResponseDeadline == nil && upd.ExternalReviewDeadline == nil {
		return nil, fmt.Errorf("%w: no deadline fields provided", ErrInvalidInput)
	}
	if upd.ResponseDeadline != nil && upd.ResponseDeadline.IsZero() {
		return nil, fmt.Errorf("%w: response_deadline cannot be zero", ErrInvalidInput)
	}
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.ResponseDeadline != nil {
		d.Deadlines.ResponseDeadline = *upd.ResponseDeadline
	}
	if upd.UrgentResponseDeadline != nil {
		d.Deadlines.UrgentResponseDeadline = upd.UrgentResponseDeadline
	}
	if upd.ExternalReviewDeadline != nil {
		d.Deadlines.ExternalReviewDeadline = upd.ExternalReviewDeadline
	}
	now := s.clk.Now()
	ResolveOpenFlags(d, now)
	UpdateDeadlineFlags(d, now)
	if err := s.disputes.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ResolveFlag marks one deadline flag resolved by id. The returned
// bool reports whether anything changed; resolving an unknown or
// already-resolved flag is a no-op, not an error.
func (s *Service) ResolveFlag(ctx context.Context, disputeID, flagID uuid.UUID) (*Dispute, bool, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, false, err
	}
	resolved := ResolveFlag(d, flagID, s.clk.Now())
	if resolved {
		if err := s.disputes.UpdateFlags(ctx, d); err != nil {
			return nil, false, err
		}
	}
	return d, resolved, nil
}

// ListFlags returns the dispute's full flag history, oldest first.
func (s *Service) ListFlags(ctx context.Context, id uuid.UUID) ([]DeadlineFlag, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Deadlines.Flags == nil {
		return []DeadlineFlag{}, nil
	}
	return d.Deadlines.Flags, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Dispute, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrInvalidInput, status)
	}
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Status = status
	if err := s.disputes.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Summary recomputes deadline pressure across the active dispute set.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	active, err := s.disputes.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(active, s.clk.Now()), nil
}
