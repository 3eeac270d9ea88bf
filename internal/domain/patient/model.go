package patient

import (
	"time"

	"github.com/google/uuid"
)

// Clinical document types that count as recent supporting evidence for a
// dispute (see the documentation completeness check).
const (
	DocTypeEHR        = "ehr"
	DocTypeLabResults = "lab_results"
	DocTypeImaging    = "imaging"
	DocTypeReferral   = "referral"
	DocTypeOther      = "other"
)

// Patient is the read-only snapshot the validation checks consume. The
// dispute engine never mutates patient data.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Insurance   Insurance  `db:"insurance" json:"insurance"`
	Diagnoses   []string   `db:"diagnoses" json:"diagnoses"`
	Documents   []Document `db:"documents" json:"documents"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Insurance holds the coverage details verified before submission.
type Insurance struct {
	Provider       string     `json:"provider"`
	PolicyNumber   string     `json:"policy_number"`
	GroupNumber    string     `json:"group_number,omitempty"`
	SubscriberID   string     `json:"subscriber_id,omitempty"`
	PlanName       string     `json:"plan_name,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// Document is an uploaded medical record attached to the patient chart.
type Document struct {
	Name         string    `json:"name"`
	DocumentType string    `json:"document_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Age returns the patient's age in full years at the given instant, or -1
// when the date of birth is unknown.
func (p *Patient) Age(now time.Time) int {
	if p.DateOfBirth == nil {
		return -1
	}
	dob := *p.DateOfBirth
	years := now.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// HasRecentClinicalDocument reports whether any EHR, lab result, or imaging
// document was uploaded within the given window before now.
func (p *Patient) HasRecentClinicalDocument(now time.Time, window time.Duration) bool {
	cutoff := now.Add(-window)
	for _, doc := range p.Documents {
		switch doc.DocumentType {
		case DocTypeEHR, DocTypeLabResults, DocTypeImaging:
			if doc.UploadedAt.After(cutoff) {
				return true
			}
		}
	}
	return false
}
