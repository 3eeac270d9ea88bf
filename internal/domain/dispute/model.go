package dispute

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a dispute does not exist or is soft-deleted.
	ErrNotFound = errors.New("dispute not found")
	// ErrInvalidInput is returned for requests that fail enum or shape validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Dispute statuses. The engine does not enforce transition legality.
const (
	StatusPending     = "pending"
	StatusInProgress  = "in_progress"
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusDenied      = "denied"
	StatusWithdrawn   = "withdrawn"
)

var validStatuses = map[string]bool{
	StatusPending:     true,
	StatusInProgress:  true,
	StatusSubmitted:   true,
	StatusUnderReview: true,
	StatusApproved:    true,
	StatusDenied:      true,
	StatusWithdrawn:   true,
}

// activeStatuses is the set the deadline monitor watches.
var activeStatuses = map[string]bool{
	StatusPending:     true,
	StatusInProgress:  true,
	StatusSubmitted:   true,
	StatusUnderReview: true,
}

const (
	UrgencyRoutine  = "routine"
	UrgencyUrgent   = "urgent"
	UrgencyEmergent = "emergent"
)

var validUrgencies = map[string]bool{
	UrgencyRoutine:  true,
	UrgencyUrgent:   true,
	UrgencyEmergent: true,
}

const (
	DenialMedicalNecessity   = "medical_necessity"
	DenialPriorAuthorization = "prior_authorization"
	DenialCoverageExclusion  = "coverage_exclusion"
	DenialDocumentation      = "documentation"
	DenialCodingError        = "coding_error"
	DenialOther              = "other"
)

var validDenialTypes = map[string]bool{
	DenialMedicalNecessity:   true,
	DenialPriorAuthorization: true,
	DenialCoverageExclusion:  true,
	DenialDocumentation:      true,
	DenialCodingError:        true,
	DenialOther:              true,
}

// Deadline flag types, ordered warning < urgent < overdue by severity.
const (
	FlagWarning = "warning"
	FlagUrgent  = "urgent"
	FlagOverdue = "overdue"
)

// Validation statuses, shared by individual checks and the overall result.
const (
	ValidationPending = "pending"
	ValidationPassed  = "passed"
	ValidationFailed  = "failed"
	ValidationWarning = "warning"
)

// The seven pre-submission check kinds, in the order they run.
const (
	CheckCPTCode          = "cpt_code"
	CheckICD10Code        = "icd10_code"
	CheckDemographics     = "demographics"
	CheckInsurance        = "insurance"
	CheckMedicalNecessity = "medical_necessity"
	CheckDocumentation    = "documentation"
	CheckPriorAuthHistory = "prior_auth_history"
)

// Dispute maps to the disputes table. Deadline flags and validation
// check results are JSONB columns owned by the row and written
// wholesale with it.
type Dispute struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	PatientID  uuid.UUID      `db:"patient_id" json:"patient_id"`
	GroupID    uuid.UUID      `db:"group_id" json:"group_id,omitempty"`
	CreatedBy  uuid.UUID      `db:"created_by" json:"created_by"`
	Status     string         `db:"status" json:"status"`
	Request    RequestDetails `json:"request"`
	Denial     Denial         `json:"denial"`
	Deadlines  Deadlines      `json:"deadlines"`
	Validation Validation     `json:"validation"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// RequestDetails describes the service whose authorization was denied.
type RequestDetails struct {
	RequestedService      string    `db:"requested_service" json:"requested_service"`
	ServiceCode           string    `db:"service_code" json:"service_code,omitempty"`
	DiagnosisCode         string    `db:"diagnosis_code" json:"diagnosis_code,omitempty"`
	RequestedDate         time.Time `db:"requested_date" json:"requested_date"`
	Urgency               string    `db:"urgency" json:"urgency"`
	ClinicalJustification string    `db:"clinical_justification" json:"clinical_justification"`
}

// Denial captures the payer's denial being disputed.
type Denial struct {
	DenialDate     time.Time `db:"denial_date" json:"denial_date"`
	DenialReason   string    `db:"denial_reason" json:"denial_reason"`
	DenialCode     string    `db:"denial_code" json:"denial_code,omitempty"`
	DenialDocument string    `db:"denial_document" json:"denial_document,omitempty"`
	DenialType     string    `db:"denial_type" json:"denial_type"`
}

// Deadlines holds the compliance windows and the flag history raised
// against them.
type Deadlines struct {
	ResponseDeadline       time.Time      `db:"response_deadline" json:"response_deadline"`
	UrgentResponseDeadline *time.Time     `db:"urgent_response_deadline" json:"urgent_response_deadline,omitempty"`
	ExternalReviewDeadline *time.Time     `db:"external_review_deadline" json:"external_review_deadline,omitempty"`
	Flags                  []DeadlineFlag `db:"deadline_flags" json:"flags"`
}

// Validation holds the latest pre-submission check run.
type Validation struct {
	Checks        []CheckResult `db:"validation_checks" json:"checks"`
	OverallStatus string        `db:"overall_validation_status" json:"overall_status"`
	CanSubmit     bool          `db:"can_submit" json:"can_submit"`
	LastValidated *time.Time    `db:"last_validated" json:"last_validated,omitempty"`
}

// DeadlineFlag is one alert raised against a deadline. Flags are
// reconciled, not accumulated: at most one flag per dispute is
// unresolved at any time, and resolved flags are kept forever.
// DaysRemaining is a magnitude; the sign is carried by Type.
type DeadlineFlag struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	DaysRemaining int        `json:"days_remaining"`
	FlaggedAt     time.Time  `json:"flagged_at"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// CheckResult is the outcome of one pre-submission rule check.
type CheckResult struct {
	CheckType string                 `json:"check_type"`
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
}

// IsActive reports whether the dispute still needs deadline monitoring.
func (d *Dispute) IsActive() bool { return activeStatuses[d.Status] }

// UnresolvedFlag returns the currently open deadline flag, or nil.
func (d *Dispute) UnresolvedFlag() *DeadlineFlag {
	for i := range d.Deadlines.Flags {
		if !d.Deadlines.Flags[i].Resolved {
			return &d.Deadlines.Flags[i]
		}
	}
	return nil
}

// ValidStatus reports whether s is a known dispute status.
func ValidStatus(s string) bool { return validStatuses[s] }
