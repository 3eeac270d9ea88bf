// Package sandbox provides synthetic dispute data generation for demo
// environments. It produces reproducible, realistic patients, review
// groups, and prior-authorization disputes suitable for integration
// testing, developer on-boarding, and UI demos.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/appealflow/appealflow/internal/domain/dispute"
	"github.com/appealflow/appealflow/internal/domain/group"
	"github.com/appealflow/appealflow/internal/domain/patient"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated synthetic data.
type SeedConfig struct {
	PatientCount       int   `json:"patientCount"`
	DisputesPerPatient int   `json:"disputesPerPatient"`
	GroupCount         int   `json:"groupCount"`
	StaffCount         int   `json:"staffCount"`
	Seed               int64 `json:"seed"`
}

// DefaultSeedConfig returns a SeedConfig with sensible demo defaults.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:       25,
		DisputesPerPatient: 2,
		GroupCount:         3,
		StaffCount:         8,
	}
}

// ---------------------------------------------------------------------------
// SeedResult
// ---------------------------------------------------------------------------

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Patients     int           `json:"patients"`
	Groups       int           `json:"groups"`
	Members      int           `json:"members"`
	Disputes     int           `json:"disputes"`
	Validated    int           `json:"validated"`
	TotalRecords int           `json:"totalRecords"`
	Duration     time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Code pools
// ---------------------------------------------------------------------------

type serviceEntry struct {
	Code    string
	Display string
}

type diagnosisEntry struct {
	Code    string
	Display string
}

var (
	firstNames = []string{
		"James", "Maria", "Robert", "Jennifer", "Michael", "Linda", "David",
		"Elizabeth", "William", "Susan", "Richard", "Jessica", "Joseph",
		"Sarah", "Thomas", "Karen", "Daniel", "Emily", "Matthew", "Rachel",
		"Anthony", "Carolyn", "Andrew", "Catherine", "Joshua", "Heather",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
		"Wilson", "Anderson", "Taylor", "Moore", "Lee", "Perez", "Thompson",
		"Sanchez", "Ramirez", "Nguyen", "Rivera", "Campbell", "Mitchell",
	}

	insurers = []string{
		"Blue Shield of California", "Aetna", "UnitedHealthcare", "Cigna",
		"Humana", "Kaiser Permanente", "Anthem Blue Cross", "Molina Healthcare",
	}
	planNames = []string{
		"PPO Gold", "HMO Silver", "EPO Bronze", "POS Standard", "HDHP Saver",
	}

	// Diagnoses that commonly back prior-authorization requests.
	icd10Diagnoses = []diagnosisEntry{
		{"M54.5", "Low back pain"},
		{"M17.11", "Unilateral primary osteoarthritis, right knee"},
		{"E11.9", "Type 2 diabetes mellitus without complications"},
		{"J45.909", "Unspecified asthma, uncomplicated"},
		{"G43.909", "Migraine, unspecified, not intractable"},
		{"M25.511", "Pain in right shoulder"},
		{"K21.0", "Gastro-esophageal reflux disease with esophagitis"},
		{"G47.33", "Obstructive sleep apnea"},
		{"I25.10", "Atherosclerotic heart disease without angina pectoris"},
		{"M51.26", "Intervertebral disc displacement, lumbar region"},
		{"F32.9", "Major depressive disorder, single episode, unspecified"},
		{"N20.0", "Calculus of kidney"},
	}

	// Services that routinely require prior authorization.
	cptServices = []serviceEntry{
		{"72148", "MRI lumbar spine without contrast"},
		{"70553", "MRI brain with and without contrast"},
		{"27447", "Total knee arthroplasty"},
		{"29881", "Knee arthroscopy with meniscectomy"},
		{"64483", "Transforaminal epidural injection, lumbar"},
		{"43239", "Upper GI endoscopy with biopsy"},
		{"93306", "Transthoracic echocardiography"},
		{"95810", "Polysomnography, attended"},
		{"97110", "Therapeutic exercise, each 15 minutes"},
		{"77067", "Screening mammography, bilateral"},
		{"99214", "Office visit, established patient, moderate complexity"},
		{"72110", "X-ray lumbosacral spine, minimum 4 views"},
	}

	denialTypes = []string{
		dispute.DenialMedicalNecessity,
		dispute.DenialPriorAuthorization,
		dispute.DenialCoverageExclusion,
		dispute.DenialDocumentation,
		dispute.DenialCodingError,
		dispute.DenialOther,
	}

	denialReasons = map[string][]string{
		dispute.DenialMedicalNecessity: {
			"Service not medically necessary per plan criteria",
			"Conservative treatment was not attempted before the request",
		},
		dispute.DenialPriorAuthorization: {
			"Prior authorization was not obtained before the service date",
		},
		dispute.DenialCoverageExclusion: {
			"Requested service is excluded from the member's benefit plan",
		},
		dispute.DenialDocumentation: {
			"Insufficient clinical documentation submitted with the request",
		},
		dispute.DenialCodingError: {
			"Procedure code is inconsistent with the submitted diagnosis",
		},
		dispute.DenialOther: {
			"Denied pending additional information from the provider",
		},
	}

	// Clinical justifications of varying strength. Most cover symptom,
	// treatment, and outcome language; a few are deliberately thin so
	// seeded data exercises validation warnings.
	justifications = []string{
		"Patient reports persistent pain that worsened despite six weeks of conservative therapy; the requested imaging should improve diagnostic accuracy and prevent further deterioration.",
		"Chronic symptoms have not responded to medication attempted over three months, and the procedure is expected to restore function and improve quality of life.",
		"Severe weakness and functional impairment failed to improve with physical therapy; the requested treatment is needed to prevent permanent damage and restore mobility.",
		"Member suffers from recurrent episodes that impair daily activities; prior conservative treatment failed and the service carries a strong likelihood of improved outcome.",
		"The member asked for this service after discussing available options at the last office visit.",
		"Standard intake forms were completed and the request was routed through the usual channels for this plan.",
	}

	groupNames = []string{
		"Utilization Review", "Imaging Appeals", "Surgical Appeals",
		"Pharmacy Benefits", "Escalations", "Payer Relations",
	}

	documentNames = map[string]string{
		patient.DocTypeEHR:        "office-visit-note.pdf",
		patient.DocTypeLabResults: "lab-panel.pdf",
		patient.DocTypeImaging:    "mri-report.pdf",
		patient.DocTypeReferral:   "referral-letter.pdf",
	}
	documentTypes = []string{
		patient.DocTypeEHR, patient.DocTypeLabResults,
		patient.DocTypeImaging, patient.DocTypeReferral,
	}

	urgencies = []string{
		dispute.UrgencyRoutine, dispute.UrgencyRoutine,
		dispute.UrgencyRoutine, dispute.UrgencyUrgent,
		dispute.UrgencyEmergent,
	}

	// Response deadline offsets in days relative to seed time, spread so
	// every flag bucket (overdue, urgent, warning) and the quiet zone all
	// appear in seeded data.
	deadlineOffsets = []int{-6, -2, 1, 3, 6, 12, 21, 45}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic records. Identifiers
// are random UUIDs; everything else derives from the seed.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
}

// NewDataGenerator returns a generator seeded for reproducibility. If
// seed is 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// GeneratePatient produces a patient with coverage, diagnoses, and a
// recent chart document.
func (g *DataGenerator) GeneratePatient(now time.Time) *patient.Patient {
	dob := now.AddDate(-(18 + g.rng.Intn(70)), 0, -g.rng.Intn(365))
	expiry := now.AddDate(1, 0, 0)

	diagnoses := make([]string, 0, 2)
	first := icd10Diagnoses[g.rng.Intn(len(icd10Diagnoses))]
	diagnoses = append(diagnoses, first.Code)
	if g.rng.Intn(2) == 0 {
		second := icd10Diagnoses[g.rng.Intn(len(icd10Diagnoses))]
		if second.Code != first.Code {
			diagnoses = append(diagnoses, second.Code)
		}
	}

	docType := documentTypes[g.rng.Intn(len(documentTypes))]
	docs := []patient.Document{
		{
			Name:         documentNames[docType],
			DocumentType: docType,
			UploadedAt:   now.AddDate(0, 0, -(7 + g.rng.Intn(120))),
		},
	}
	// A second, older document on roughly half the charts.
	if g.rng.Intn(2) == 0 {
		docs = append(docs, patient.Document{
			Name:         "prior-auth-request.pdf",
			DocumentType: patient.DocTypeOther,
			UploadedAt:   now.AddDate(0, 0, -(120 + g.rng.Intn(240))),
		})
	}

	return &patient.Patient{
		ID:          uuid.New(),
		FirstName:   g.pick(firstNames),
		LastName:    g.pick(lastNames),
		DateOfBirth: &dob,
		Insurance: patient.Insurance{
			Provider:       g.pick(insurers),
			PolicyNumber:   fmt.Sprintf("POL%08d", g.rng.Intn(100000000)),
			GroupNumber:    fmt.Sprintf("GRP-%04d", g.rng.Intn(10000)),
			SubscriberID:   fmt.Sprintf("SUB%07d", g.rng.Intn(10000000)),
			PlanName:       g.pick(planNames),
			ExpirationDate: &expiry,
		},
		Diagnoses: diagnoses,
		Documents: docs,
	}
}

// GenerateGroup produces a review group with a unique name.
func (g *DataGenerator) GenerateGroup() *group.Group {
	g.counter++
	name := groupNames[(g.counter-1)%len(groupNames)]
	if g.counter > len(groupNames) {
		name = fmt.Sprintf("%s %d", name, (g.counter-1)/len(groupNames)+1)
	}
	return &group.Group{ID: uuid.New(), Name: name}
}

// GenerateDispute produces a dispute for the given patient. The response
// deadline lands deadlineDays from now, negative values in the past.
func (g *DataGenerator) GenerateDispute(p *patient.Patient, createdBy, groupID uuid.UUID, deadlineDays int, now time.Time) *dispute.Dispute {
	svc := cptServices[g.rng.Intn(len(cptServices))]
	denialType := denialTypes[g.rng.Intn(len(denialTypes))]
	reasons := denialReasons[denialType]

	diagnosis := ""
	if len(p.Diagnoses) > 0 {
		diagnosis = p.Diagnoses[0]
	}

	denialDate := now.AddDate(0, 0, -(3 + g.rng.Intn(21)))
	deadline := now.AddDate(0, 0, deadlineDays)

	return &dispute.Dispute{
		PatientID: p.ID,
		GroupID:   groupID,
		CreatedBy: createdBy,
		Request: dispute.RequestDetails{
			RequestedService:      svc.Display,
			ServiceCode:           svc.Code,
			DiagnosisCode:         diagnosis,
			RequestedDate:         denialDate.AddDate(0, 0, -7),
			Urgency:               g.pick(urgencies),
			ClinicalJustification: g.pick(justifications),
		},
		Denial: dispute.Denial{
			DenialDate:   denialDate,
			DenialReason: reasons[g.rng.Intn(len(reasons))],
			DenialCode:   fmt.Sprintf("CO-%d", 50+g.rng.Intn(200)),
			DenialType:   denialType,
		},
		Deadlines: dispute.Deadlines{ResponseDeadline: deadline},
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder populates the backing stores with a complete synthetic data
// set: staff-owned review groups, insured patients, and disputes whose
// deadlines span every flag bucket.
type Seeder struct {
	cfg      SeedConfig
	gen      *DataGenerator
	patients patient.Repository
	groups   group.Repository
	disputes *dispute.Service
}

// NewSeeder creates a Seeder writing through the given repositories and
// dispute service.
func NewSeeder(cfg SeedConfig, patients patient.Repository, groups group.Repository, disputes *dispute.Service) *Seeder {
	return &Seeder{
		cfg:      cfg,
		gen:      NewDataGenerator(cfg.Seed),
		patients: patients,
		groups:   groups,
		disputes: disputes,
	}
}

// Run generates and persists the full data set. Disputes are created
// through the dispute service so creation defaults apply, and a third
// of them get an initial validation pass so demo data shows check
// results out of the box.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	now := start.UTC()
	result := &SeedResult{}

	staff := make([]uuid.UUID, s.cfg.StaffCount)
	for i := range staff {
		staff[i] = uuid.New()
	}

	groupIDs := make([]uuid.UUID, 0, s.cfg.GroupCount)
	permissions := []string{group.PermissionAdmin, group.PermissionEdit, group.PermissionView}
	for i := 0; i < s.cfg.GroupCount; i++ {
		grp := s.gen.GenerateGroup()
		if err := s.groups.Create(ctx, grp); err != nil {
			return nil, fmt.Errorf("seeding group %q: %w", grp.Name, err)
		}
		groupIDs = append(groupIDs, grp.ID)
		result.Groups++

		// Each group gets three members with descending permissions.
		for j := 0; j < 3 && j < len(staff); j++ {
			m := &group.Member{
				GroupID:    grp.ID,
				UserID:     staff[(i+j)%len(staff)],
				Permission: permissions[j%len(permissions)],
			}
			if err := s.groups.AddMember(ctx, m); err != nil {
				return nil, fmt.Errorf("seeding member of %q: %w", grp.Name, err)
			}
			result.Members++
		}
	}

	disputeIDs := make([]uuid.UUID, 0, s.cfg.PatientCount*s.cfg.DisputesPerPatient)
	for i := 0; i < s.cfg.PatientCount; i++ {
		p := s.gen.GeneratePatient(now)
		if err := s.patients.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seeding patient %s %s: %w", p.FirstName, p.LastName, err)
		}
		result.Patients++

		for j := 0; j < s.cfg.DisputesPerPatient; j++ {
			n := i*s.cfg.DisputesPerPatient + j
			offset := deadlineOffsets[n%len(deadlineOffsets)]
			creator := staff[n%len(staff)]

			// Every other dispute is assigned to a review group.
			groupID := uuid.Nil
			if len(groupIDs) > 0 && n%2 == 0 {
				groupID = groupIDs[n%len(groupIDs)]
			}

			d := s.gen.GenerateDispute(p, creator, groupID, offset, now)
			if err := s.disputes.Create(ctx, d); err != nil {
				return nil, fmt.Errorf("seeding dispute for patient %s: %w", p.ID, err)
			}
			disputeIDs = append(disputeIDs, d.ID)
			result.Disputes++
		}
	}

	for i, id := range disputeIDs {
		if i%3 != 0 {
			continue
		}
		if _, _, err := s.disputes.Validate(ctx, id); err != nil {
			return nil, fmt.Errorf("validating seeded dispute %s: %w", id, err)
		}
		result.Validated++
	}

	result.TotalRecords = result.Patients + result.Groups + result.Members + result.Disputes
	result.Duration = time.Since(start)
	return result, nil
}
