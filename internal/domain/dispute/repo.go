package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	// Update writes the dispute's full mutable state, flags and checks
	// included.
	Update(ctx context.Context, d *Dispute) error
	// UpdateFlags writes only the deadline flag set; the monitor uses
	// it so a tick never clobbers concurrent validation writes.
	UpdateFlags(ctx context.Context, d *Dispute) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status string, patientID uuid.UUID, limit, offset int) ([]*Dispute, int, error)
	// ListActive returns every dispute still awaiting an outcome,
	// soonest deadline first.
	ListActive(ctx context.Context) ([]*Dispute, error)
	// ListByPatient returns the patient's disputes created at or after
	// since, any status, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*Dispute, error)
}
