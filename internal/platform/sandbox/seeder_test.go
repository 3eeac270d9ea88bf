package sandbox

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/appealflow/appealflow/internal/domain/dispute"
	"github.com/appealflow/appealflow/internal/domain/group"
	"github.com/appealflow/appealflow/internal/domain/patient"
	"github.com/appealflow/appealflow/pkg/clock"
)

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type memPatientRepo struct {
	items map[uuid.UUID]*patient.Patient
}

func newMemPatientRepo() *memPatientRepo {
	return &memPatientRepo{items: make(map[uuid.UUID]*patient.Patient)}
}

func (r *memPatientRepo) Create(_ context.Context, p *patient.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *memPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.items[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPatientRepo) Update(_ context.Context, p *patient.Patient) error {
	if _, ok := r.items[p.ID]; !ok {
		return patient.ErrNotFound
	}
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *memPatientRepo) List(_ context.Context, limit, offset int) ([]*patient.Patient, int, error) {
	out := make([]*patient.Patient, 0, len(r.items))
	for _, p := range r.items {
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type memGroupRepo struct {
	groups  map[uuid.UUID]*group.Group
	members map[uuid.UUID][]*group.Member
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{
		groups:  make(map[uuid.UUID]*group.Group),
		members: make(map[uuid.UUID][]*group.Member),
	}
}

func (r *memGroupRepo) Create(_ context.Context, g *group.Group) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	cp := *g
	r.groups[g.ID] = &cp
	return nil
}

func (r *memGroupRepo) GetByID(_ context.Context, id uuid.UUID) (*group.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, group.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGroupRepo) List(_ context.Context, limit, offset int) ([]*group.Group, int, error) {
	out := make([]*group.Group, 0, len(r.groups))
	for _, g := range r.groups {
		cp := *g
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *memGroupRepo) AddMember(_ context.Context, m *group.Member) error {
	cp := *m
	r.members[m.GroupID] = append(r.members[m.GroupID], &cp)
	return nil
}

func (r *memGroupRepo) RemoveMember(_ context.Context, groupID, userID uuid.UUID) error {
	ms := r.members[groupID]
	for i, m := range ms {
		if m.UserID == userID {
			r.members[groupID] = append(ms[:i], ms[i+1:]...)
			return nil
		}
	}
	return group.ErrNotFound
}

func (r *memGroupRepo) ListMembers(_ context.Context, groupID uuid.UUID) ([]*group.Member, error) {
	return r.members[groupID], nil
}

func (r *memGroupRepo) ListEditors(_ context.Context, groupID uuid.UUID) ([]*group.Member, error) {
	var out []*group.Member
	for _, m := range r.members[groupID] {
		if m.CanEdit() {
			out = append(out, m)
		}
	}
	return out, nil
}

type memDisputeRepo struct {
	items map[uuid.UUID]*dispute.Dispute
	order []uuid.UUID
}

func newMemDisputeRepo() *memDisputeRepo {
	return &memDisputeRepo{items: make(map[uuid.UUID]*dispute.Dispute)}
}

func (r *memDisputeRepo) Create(_ context.Context, d *dispute.Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	cp := *d
	r.items[d.ID] = &cp
	r.order = append(r.order, d.ID)
	return nil
}

func (r *memDisputeRepo) GetByID(_ context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	d, ok := r.items[id]
	if !ok || d.DeletedAt != nil {
		return nil, dispute.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDisputeRepo) Update(_ context.Context, d *dispute.Dispute) error {
	if _, ok := r.items[d.ID]; !ok {
		return dispute.ErrNotFound
	}
	cp := *d
	r.items[d.ID] = &cp
	return nil
}

func (r *memDisputeRepo) UpdateFlags(_ context.Context, d *dispute.Dispute) error {
	cur, ok := r.items[d.ID]
	if !ok {
		return dispute.ErrNotFound
	}
	cur.Deadlines.Flags = d.Deadlines.Flags
	return nil
}

func (r *memDisputeRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	d, ok := r.items[id]
	if !ok {
		return dispute.ErrNotFound
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	return nil
}

func (r *memDisputeRepo) List(_ context.Context, status string, patientID uuid.UUID, limit, offset int) ([]*dispute.Dispute, int, error) {
	var out []*dispute.Dispute
	for _, id := range r.order {
		d := r.items[id]
		if d.DeletedAt != nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		if patientID != uuid.Nil && d.PatientID != patientID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *memDisputeRepo) ListActive(_ context.Context) ([]*dispute.Dispute, error) {
	var out []*dispute.Dispute
	for _, id := range r.order {
		d := r.items[id]
		if d.DeletedAt == nil && d.IsActive() {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDisputeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, since time.Time) ([]*dispute.Dispute, error) {
	var out []*dispute.Dispute
	for _, id := range r.order {
		d := r.items[id]
		if d.DeletedAt != nil || d.PatientID != patientID || d.CreatedAt.Before(since) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// DataGenerator tests
// ---------------------------------------------------------------------------

var cptPattern = regexp.MustCompile(`^\d{5}$`)

func TestDataGenerator_GeneratePatient(t *testing.T) {
	gen := NewDataGenerator(42)
	now := time.Now().UTC()
	p := gen.GeneratePatient(now)

	if p.ID == uuid.Nil {
		t.Fatal("expected non-nil patient id")
	}
	if p.FirstName == "" || p.LastName == "" {
		t.Fatalf("expected full name, got %q %q", p.FirstName, p.LastName)
	}
	if p.DateOfBirth == nil {
		t.Fatal("expected date of birth")
	}
	age := p.Age(now)
	if age < 18 || age > 90 {
		t.Errorf("expected adult patient, got age %d", age)
	}
	if p.Insurance.Provider == "" || p.Insurance.PolicyNumber == "" {
		t.Error("expected populated insurance")
	}
	if p.Insurance.ExpirationDate == nil || !p.Insurance.ExpirationDate.After(now) {
		t.Error("expected unexpired coverage")
	}
	if len(p.Diagnoses) == 0 {
		t.Fatal("expected at least one diagnosis")
	}
	if len(p.Documents) == 0 {
		t.Fatal("expected at least one chart document")
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	now := time.Now().UTC()
	a := NewDataGenerator(7).GeneratePatient(now)
	b := NewDataGenerator(7).GeneratePatient(now)

	if a.FirstName != b.FirstName || a.LastName != b.LastName {
		t.Errorf("expected identical names for same seed, got %s %s vs %s %s",
			a.FirstName, a.LastName, b.FirstName, b.LastName)
	}
	if a.Insurance.PolicyNumber != b.Insurance.PolicyNumber {
		t.Errorf("expected identical policy numbers, got %s vs %s",
			a.Insurance.PolicyNumber, b.Insurance.PolicyNumber)
	}
}

func TestDataGenerator_GenerateGroup_UniqueNames(t *testing.T) {
	gen := NewDataGenerator(42)
	seen := make(map[string]bool)
	for i := 0; i < len(groupNames)+3; i++ {
		g := gen.GenerateGroup()
		if g.Name == "" {
			t.Fatal("expected non-empty group name")
		}
		if seen[g.Name] {
			t.Fatalf("duplicate group name %q", g.Name)
		}
		seen[g.Name] = true
	}
}

func TestDataGenerator_GenerateDispute(t *testing.T) {
	gen := NewDataGenerator(42)
	now := time.Now().UTC()
	p := gen.GeneratePatient(now)
	creator := uuid.New()

	d := gen.GenerateDispute(p, creator, uuid.Nil, 5, now)

	if d.PatientID != p.ID {
		t.Errorf("expected patient id %s, got %s", p.ID, d.PatientID)
	}
	if d.CreatedBy != creator {
		t.Errorf("expected creator %s, got %s", creator, d.CreatedBy)
	}
	if !cptPattern.MatchString(d.Request.ServiceCode) {
		t.Errorf("expected 5-digit service code, got %q", d.Request.ServiceCode)
	}
	if d.Request.DiagnosisCode != p.Diagnoses[0] {
		t.Errorf("expected diagnosis %q, got %q", p.Diagnoses[0], d.Request.DiagnosisCode)
	}
	if d.Denial.DenialReason == "" || d.Denial.DenialType == "" {
		t.Error("expected populated denial")
	}
	if !d.Denial.DenialDate.Before(now) {
		t.Error("expected denial date in the past")
	}

	wantDeadline := now.AddDate(0, 0, 5)
	if !d.Deadlines.ResponseDeadline.Equal(wantDeadline) {
		t.Errorf("expected deadline %v, got %v", wantDeadline, d.Deadlines.ResponseDeadline)
	}
}

// ---------------------------------------------------------------------------
// Seeder tests
// ---------------------------------------------------------------------------

func newTestSeeder(cfg SeedConfig) (*Seeder, *memDisputeRepo, *memGroupRepo) {
	patients := newMemPatientRepo()
	groups := newMemGroupRepo()
	disputes := newMemDisputeRepo()
	svc := dispute.NewService(disputes, patients, clock.Real())
	return NewSeeder(cfg, patients, groups, svc), disputes, groups
}

func TestSeeder_Run_Counts(t *testing.T) {
	cfg := SeedConfig{PatientCount: 4, DisputesPerPatient: 2, GroupCount: 2, StaffCount: 3, Seed: 7}
	s, disputes, groups := newTestSeeder(cfg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Patients != 4 {
		t.Errorf("expected 4 patients, got %d", result.Patients)
	}
	if result.Groups != 2 {
		t.Errorf("expected 2 groups, got %d", result.Groups)
	}
	if result.Members != 6 {
		t.Errorf("expected 6 members, got %d", result.Members)
	}
	if result.Disputes != 8 {
		t.Errorf("expected 8 disputes, got %d", result.Disputes)
	}
	if result.Validated != 3 {
		t.Errorf("expected 3 validated disputes, got %d", result.Validated)
	}
	if result.TotalRecords != 4+2+6+8 {
		t.Errorf("expected %d total records, got %d", 4+2+6+8, result.TotalRecords)
	}

	if len(disputes.items) != 8 {
		t.Errorf("expected 8 persisted disputes, got %d", len(disputes.items))
	}
	if len(groups.groups) != 2 {
		t.Errorf("expected 2 persisted groups, got %d", len(groups.groups))
	}
}

func TestSeeder_Run_DeadlinesSpanBuckets(t *testing.T) {
	cfg := SeedConfig{PatientCount: 4, DisputesPerPatient: 2, GroupCount: 1, StaffCount: 2, Seed: 7}
	s, disputes, _ := newTestSeeder(cfg)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var overdue, urgent, warning, quiet int
	for _, d := range disputes.items {
		days := int(time.Until(d.Deadlines.ResponseDeadline).Hours() / 24)
		switch {
		case days < 0:
			overdue++
		case days <= 3:
			urgent++
		case days <= 7:
			warning++
		default:
			quiet++
		}
	}
	if overdue == 0 || urgent == 0 || warning == 0 || quiet == 0 {
		t.Errorf("expected all deadline buckets represented, got overdue=%d urgent=%d warning=%d quiet=%d",
			overdue, urgent, warning, quiet)
	}
}

func TestSeeder_Run_AppliesCreationDefaults(t *testing.T) {
	cfg := SeedConfig{PatientCount: 2, DisputesPerPatient: 1, GroupCount: 1, StaffCount: 2, Seed: 7}
	s, disputes, _ := newTestSeeder(cfg)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range disputes.items {
		if d.Status != dispute.StatusPending {
			t.Errorf("expected pending status, got %q", d.Status)
		}
		if d.Deadlines.ResponseDeadline.IsZero() {
			t.Error("expected a response deadline")
		}
	}
}

func TestSeeder_Run_ValidatesSubset(t *testing.T) {
	cfg := SeedConfig{PatientCount: 3, DisputesPerPatient: 2, GroupCount: 1, StaffCount: 2, Seed: 7}
	s, disputes, _ := newTestSeeder(cfg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var withChecks int
	for _, d := range disputes.items {
		if len(d.Validation.Checks) > 0 {
			withChecks++
			if d.Validation.OverallStatus == dispute.ValidationPending {
				t.Error("validated dispute still pending")
			}
		}
	}
	if withChecks != result.Validated {
		t.Errorf("expected %d disputes with check results, got %d", result.Validated, withChecks)
	}
}

func TestSeeder_Run_AssignsGroups(t *testing.T) {
	cfg := SeedConfig{PatientCount: 4, DisputesPerPatient: 2, GroupCount: 2, StaffCount: 3, Seed: 7}
	s, disputes, groups := newTestSeeder(cfg)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var assigned int
	for _, d := range disputes.items {
		if d.GroupID == uuid.Nil {
			continue
		}
		assigned++
		if _, ok := groups.groups[d.GroupID]; !ok {
			t.Errorf("dispute assigned to unknown group %s", d.GroupID)
		}
	}
	if assigned != 4 {
		t.Errorf("expected 4 group-assigned disputes, got %d", assigned)
	}
}
