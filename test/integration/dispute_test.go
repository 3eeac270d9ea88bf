package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/appealflow/appealflow/internal/domain/dispute"
	"github.com/appealflow/appealflow/pkg/clock"
)

func TestDisputeCreateAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p := createTestPatient(t, ctx, "Maria", "Santos")

	denialDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
		d.Status = ""
		d.Request.Urgency = ""
		d.Denial.DenialType = ""
		d.Denial.DenialDate = denialDate
		d.Deadlines.ResponseDeadline = time.Time{}
	})

	if d.ID == uuid.Nil {
		t.Fatal("expected non-nil ID after create")
	}
	if d.Status != dispute.StatusPending {
		t.Errorf("expected default status pending, got %s", d.Status)
	}
	if d.Request.Urgency != dispute.UrgencyRoutine {
		t.Errorf("expected default urgency routine, got %s", d.Request.Urgency)
	}
	if d.Denial.DenialType != dispute.DenialOther {
		t.Errorf("expected default denial type other, got %s", d.Denial.DenialType)
	}

	want := denialDate.AddDate(0, 0, 30)
	if !d.Deadlines.ResponseDeadline.Equal(want) {
		t.Errorf("expected response deadline %v (denial+30d), got %v", want, d.Deadlines.ResponseDeadline)
	}
	if d.Validation.OverallStatus != dispute.ValidationPending {
		t.Errorf("expected validation status pending, got %s", d.Validation.OverallStatus)
	}
	if d.Validation.CanSubmit {
		t.Error("a fresh dispute must not be submittable")
	}
}

func TestDisputeGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p := createTestPatient(t, ctx, "Omar", "Haddad")
	g := createTestGroup(t, ctx, "Cardiology Review")

	urgentDeadline := time.Now().AddDate(0, 0, 3).Truncate(time.Second).UTC()
	created := createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
		d.GroupID = g.ID
		d.Request.Urgency = dispute.UrgencyUrgent
		d.Deadlines.UrgentResponseDeadline = ptrTime(urgentDeadline)
	})

	fetched, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}

	if fetched.PatientID != p.ID {
		t.Errorf("patient id mismatch: %s vs %s", fetched.PatientID, p.ID)
	}
	if fetched.GroupID != g.ID {
		t.Errorf("group id mismatch: %s vs %s", fetched.GroupID, g.ID)
	}
	if fetched.Request.ServiceCode != "72148" {
		t.Errorf("service code mismatch: %s", fetched.Request.ServiceCode)
	}
	if fetched.Denial.DenialType != dispute.DenialMedicalNecessity {
		t.Errorf("denial type mismatch: %s", fetched.Denial.DenialType)
	}
	if fetched.Deadlines.UrgentResponseDeadline == nil ||
		!fetched.Deadlines.UrgentResponseDeadline.Equal(urgentDeadline) {
		t.Errorf("urgent deadline mismatch: %v", fetched.Deadlines.UrgentResponseDeadline)
	}
	if len(fetched.Deadlines.Flags) != 0 {
		t.Errorf("expected no flags on a fresh dispute, got %d", len(fetched.Deadlines.Flags))
	}
	if len(fetched.Validation.Checks) != 0 {
		t.Errorf("expected no checks on a fresh dispute, got %d", len(fetched.Validation.Checks))
	}
}

func TestDisputeStatusAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p := createTestPatient(t, ctx, "Lena", "Okafor")
	d := createTestDispute(t, ctx, svc, p.ID, nil)

	updated, err := svc.UpdateStatus(ctx, d.ID, dispute.StatusSubmitted)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != dispute.StatusSubmitted {
		t.Errorf("expected status submitted, got %s", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, d.ID, "bogus"); !errors.Is(err, dispute.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bogus status, got %v", err)
	}

	if err := svc.Delete(ctx, d.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := svc.Get(ctx, d.ID); !errors.Is(err, dispute.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, d.ID); !errors.Is(err, dispute.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}

	// The row survives for audit; only the API surface hides it.
	var count int
	err = globalDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM disputes WHERE id = $1 AND deleted_at IS NOT NULL`, d.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count deleted rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected soft-deleted row to remain, found %d", count)
	}
}

func TestDisputeListFilters(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p1 := createTestPatient(t, ctx, "Ana", "Silva")
	p2 := createTestPatient(t, ctx, "Tom", "Baker")

	createTestDispute(t, ctx, svc, p1.ID, nil)
	d2 := createTestDispute(t, ctx, svc, p1.ID, nil)
	createTestDispute(t, ctx, svc, p2.ID, nil)

	if _, err := svc.UpdateStatus(ctx, d2.ID, dispute.StatusApproved); err != nil {
		t.Fatalf("update status: %v", err)
	}

	all, total, err := svc.List(ctx, "", uuid.Nil, 50, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Errorf("expected 3 disputes, got total=%d len=%d", total, len(all))
	}

	pending, total, err := svc.List(ctx, dispute.StatusPending, uuid.Nil, 50, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 pending disputes, got %d", total)
	}
	for _, d := range pending {
		if d.Status != dispute.StatusPending {
			t.Errorf("status filter leaked %s", d.Status)
		}
	}

	forP1, total, err := svc.List(ctx, "", p1.ID, 50, 0)
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 disputes for patient, got %d", total)
	}
	for _, d := range forP1 {
		if d.PatientID != p1.ID {
			t.Errorf("patient filter leaked %s", d.PatientID)
		}
	}

	if _, _, err := svc.List(ctx, "nonsense", uuid.Nil, 50, 0); !errors.Is(err, dispute.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad status filter, got %v", err)
	}

	// Pagination window
	page, total, err := svc.List(ctx, "", uuid.Nil, 2, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("expected total=3 with 1 item on second page, got total=%d len=%d", total, len(page))
	}
}

func TestDisputeListActiveOrdersBySoonestDeadline(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p := createTestPatient(t, ctx, "Noah", "Kim")

	far := createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
		d.Deadlines.ResponseDeadline = time.Now().AddDate(0, 0, 40)
	})
	near := createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
		d.Deadlines.ResponseDeadline = time.Now().AddDate(0, 0, 2)
	})
	mid := createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
		d.Deadlines.ResponseDeadline = time.Now().AddDate(0, 0, 15)
	})
	settled := createTestDispute(t, ctx, svc, p.ID, nil)
	if _, err := svc.UpdateStatus(ctx, settled.ID, dispute.StatusDenied); err != nil {
		t.Fatalf("settle dispute: %v", err)
	}

	repo := dispute.NewRepoPG(globalDB.Pool)
	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}

	if len(active) != 3 {
		t.Fatalf("expected 3 active disputes, got %d", len(active))
	}
	wantOrder := []uuid.UUID{near.ID, mid.ID, far.ID}
	for i, want := range wantOrder {
		if active[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, active[i].ID)
		}
	}
	for _, d := range active {
		if d.ID == settled.ID {
			t.Error("denied dispute leaked into the active set")
		}
	}
}

func TestDisputeListByPatientSince(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newDisputeService(clock.Real())
	p := createTestPatient(t, ctx, "Iris", "Moreau")

	d := createTestDispute(t, ctx, svc, p.ID, nil)

	repo := dispute.NewRepoPG(globalDB.Pool)

	within, err := repo.ListByPatient(ctx, p.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	if len(within) != 1 || within[0].ID != d.ID {
		t.Fatalf("expected the new dispute inside the window, got %d", len(within))
	}

	outside, err := repo.ListByPatient(ctx, p.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list by patient (future cutoff): %v", err)
	}
	if len(outside) != 0 {
		t.Errorf("expected no disputes past a future cutoff, got %d", len(outside))
	}
}

func TestDeadlineSummaryBucketsActiveDisputes(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	base := time.Now().UTC().Truncate(time.Hour)
	clk := clock.NewFake(base)
	svc := newDisputeService(clk)
	p := createTestPatient(t, ctx, "Gus", "Ferreira")

	mk := func(deadline time.Time) *dispute.Dispute {
		return createTestDispute(t, ctx, svc, p.ID, func(d *dispute.Dispute) {
			d.Deadlines.ResponseDeadline = deadline
		})
	}
	overdue := mk(base.Add(-36 * time.Hour)) // 2 days overdue
	mk(base.Add(48 * time.Hour))             // urgent, 2 days out
	mk(base.Add(6 * 24 * time.Hour))         // warning, 6 days out
	mk(base.Add(30 * 24 * time.Hour))        // comfortable, no bucket

	s, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	if s.Total != 4 {
		t.Errorf("expected total 4, got %d", s.Total)
	}
	if s.Overdue != 1 || s.Urgent != 1 || s.Warning != 1 {
		t.Errorf("expected 1/1/1 buckets, got overdue=%d urgent=%d warning=%d", s.Overdue, s.Urgent, s.Warning)
	}
	if len(s.Details) != 3 {
		t.Fatalf("expected 3 details (unflagged dispute excluded), got %d", len(s.Details))
	}
	if s.Details[0].DisputeID != overdue.ID || s.Details[0].Category != dispute.FlagOverdue {
		t.Errorf("expected overdue first, got %s (%s)", s.Details[0].Category, s.Details[0].DisputeID)
	}
	if s.Details[0].DaysRemaining != -2 {
		t.Errorf("expected -2 days remaining for overdue detail, got %d", s.Details[0].DaysRemaining)
	}
}
