package dispute

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/appealflow/appealflow/internal/domain/patient"
)

// CheckInput carries the auxiliary data the rule checks read. Patient
// may be nil when the record is missing; History holds the patient's
// other disputes from the trailing history window.
type CheckInput struct {
	Patient *patient.Patient
	History []*Dispute
	Now     time.Time
}

var (
	cptPattern   = regexp.MustCompile(`^\d{5}(-[A-Za-z0-9]{2})?$`)
	icd10Pattern = regexp.MustCompile(`^[A-Za-z]\d{2}(\.\d{1,4})?$`)
)

const (
	cptCodeMin = 10000
	cptCodeMax = 99999

	minJustificationLen = 50
	minProviderLen      = 3
	minPolicyNumberLen  = 5

	historyWindow        = 90 * 24 * time.Hour
	recentDocumentWindow = 180 * 24 * time.Hour
)

// necessityKeywords are the three language categories a clinical
// justification is screened for. Matching is case-insensitive
// substring presence; word roots keep inflections covered.
var necessityKeywords = map[string][]string{
	"symptom":   {"symptom", "pain", "suffer", "impair", "deterior", "worsen", "dysfunction", "unable"},
	"treatment": {"treatment", "therap", "medicat", "procedure", "conservative", "attempted", "failed", "tried"},
	"outcome":   {"improve", "outcome", "prognosis", "recover", "prevent", "risk", "benefit", "restore"},
}

func checkCPTCode(d *Dispute, in CheckInput) CheckResult {
	code := strings.TrimSpace(d.Request.ServiceCode)
	res := CheckResult{CheckType: CheckCPTCode, CheckedAt: in.Now}
	if code == "" {
		res.Status = ValidationFailed
		res.Message = "service code (CPT) is required for submission"
		return res
	}
	res.Details = map[string]interface{}{"service_code": code}
	if !cptPattern.MatchString(code) {
		res.Status = ValidationFailed
		res.Message = fmt.Sprintf("service code %q is not a valid CPT format (5 digits with optional 2-char modifier)", code)
		return res
	}
	numeric, _ := strconv.Atoi(code[:5])
	if numeric < cptCodeMin || numeric > cptCodeMax {
		res.Status = ValidationFailed
		res.Message = fmt.Sprintf("service code %q is outside the valid CPT range", code)
		return res
	}
	res.Status = ValidationPassed
	res.Message = "service code format is valid"
	return res
}

func checkICD10Code(d *Dispute, in CheckInput) CheckResult {
	code := strings.TrimSpace(d.Request.DiagnosisCode)
	res := CheckResult{CheckType: CheckICD10Code, CheckedAt: in.Now}
	if code == "" {
		res.Status = ValidationWarning
		res.Message = "no diagnosis code provided; an ICD-10 code is recommended for submission"
		return res
	}
	res.Details = map[string]interface{}{"diagnosis_code": code}
	if !icd10Pattern.MatchString(code) {
		res.Status = ValidationFailed
		res.Message = fmt.Sprintf("diagnosis code %q is not a valid ICD-10 format", code)
		return res
	}
	res.Status = ValidationPassed
	res.Message = "diagnosis code format is valid"
	return res
}

func checkDemographics(d *Dispute, in CheckInput) CheckResult {
	res := CheckResult{CheckType: CheckDemographics, CheckedAt: in.Now}
	if in.Patient == nil {
		res.Status = ValidationFailed
		res.Message = "patient record could not be loaded"
		res.Details = map[string]interface{}{"missing": "patient data"}
		return res
	}
	p := in.Patient
	var issues []string
	if len(strings.TrimSpace(p.FirstName)) < 2 || len(strings.TrimSpace(p.LastName)) < 2 {
		issues = append(issues, "patient name is incomplete")
	}
	if p.DateOfBirth == nil {
		issues = append(issues, "date of birth is missing")
	} else if age := p.Age(in.Now); age < 0 || age > 150 {
		issues = append(issues, "date of birth is implausible")
	}
	if p.Insurance.Provider == "" {
		issues = append(issues, "insurance provider is missing")
	}
	if p.Insurance.PolicyNumber == "" {
		issues = append(issues, "insurance policy number is missing")
	}
	if len(issues) > 0 {
		res.Status = ValidationFailed
		res.Message = strings.Join(issues, "; ")
		res.Details = map[string]interface{}{"issues": issues}
		return res
	}
	res.Status = ValidationPassed
	res.Message = "patient demographics are complete"
	return res
}

func checkInsurance(d *Dispute, in CheckInput) CheckResult {
	res := CheckResult{CheckType: CheckInsurance, CheckedAt: in.Now}
	if in.Patient == nil {
		res.Status = ValidationFailed
		res.Message = "patient record could not be loaded"
		res.Details = map[string]interface{}{"missing": "patient data"}
		return res
	}
	ins := in.Patient.Insurance
	var issues []string
	if len(strings.TrimSpace(ins.Provider)) < minProviderLen {
		issues = append(issues, "insurance provider name is missing or too short")
	}
	if len(strings.TrimSpace(ins.PolicyNumber)) < minPolicyNumberLen {
		issues = append(issues, "policy number is missing or too short")
	}
	if ins.ExpirationDate != nil && ins.ExpirationDate.Before(in.Now) {
		issues = append(issues, "insurance coverage has expired")
	}
	if len(issues) > 0 {
		res.Status = ValidationFailed
		res.Message = strings.Join(issues, "; ")
		res.Details = map[string]interface{}{"issues": issues}
		return res
	}
	if strings.TrimSpace(ins.GroupNumber) == "" {
		res.Status = ValidationWarning
		res.Message = "insurance group number is missing; some payers require it"
		return res
	}
	res.Status = ValidationPassed
	res.Message = "insurance information is complete and current"
	return res
}

func checkMedicalNecessity(d *Dispute, in CheckInput) CheckResult {
	res := CheckResult{CheckType: CheckMedicalNecessity, CheckedAt: in.Now}
	justification := strings.TrimSpace(d.Request.ClinicalJustification)
	res.Details = map[string]interface{}{"justification_length": len(justification)}
	if len(justification) < minJustificationLen {
		res.Status = ValidationFailed
		res.Message = fmt.Sprintf("clinical justification is too brief (%d chars, need at least %d)", len(justification), minJustificationLen)
		return res
	}
	lower := strings.ToLower(justification)
	var missing []string
	for _, category := range []string{"symptom", "treatment", "outcome"} {
		found := false
		for _, kw := range necessityKeywords[category] {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, category)
		}
	}
	if len(missing) >= 2 {
		res.Status = ValidationWarning
		res.Message = fmt.Sprintf("justification may be weak: no %s language detected", strings.Join(missing, " or "))
		res.Details["missing_categories"] = missing
		return res
	}
	res.Status = ValidationPassed
	res.Message = "clinical justification is substantive"
	return res
}

func checkDocumentation(d *Dispute, in CheckInput) CheckResult {
	res := CheckResult{CheckType: CheckDocumentation, CheckedAt: in.Now}
	if in.Patient == nil {
		res.Status = ValidationFailed
		res.Message = "patient record could not be loaded"
		res.Details = map[string]interface{}{"missing": "patient data"}
		return res
	}
	// A dispute with no denial evidence at all cannot be argued; this
	// failure suppresses the softer documentation warnings below.
	if d.Denial.DenialReason == "" && d.Denial.DenialDocument == "" {
		res.Status = ValidationFailed
		res.Message = "neither a denial reason nor a denial document is on file"
		return res
	}
	p := in.Patient
	var warnings []string
	if len(p.Diagnoses) == 0 {
		warnings = append(warnings, "no diagnosis codes on the patient record")
	}
	if len(p.Documents) == 0 {
		warnings = append(warnings, "no documents uploaded for the patient")
	} else if !p.HasRecentClinicalDocument(in.Now, recentDocumentWindow) {
		warnings = append(warnings, "no EHR, lab, or imaging document uploaded in the last 180 days")
	}
	if len(warnings) > 0 {
		res.Status = ValidationWarning
		res.Message = strings.Join(warnings, "; ")
		res.Details = map[string]interface{}{"warnings": warnings}
		return res
	}
	res.Status = ValidationPassed
	res.Message = "supporting documentation is on file"
	return res
}

func checkPriorAuthHistory(d *Dispute, in CheckInput) CheckResult {
	res := CheckResult{CheckType: CheckPriorAuthHistory, CheckedAt: in.Now}
	if d.Request.ServiceCode == "" {
		res.Status = ValidationPassed
		res.Message = "no service code to compare against prior disputes"
		return res
	}
	cutoff := in.Now.Add(-historyWindow)
	var active, resolved []*Dispute
	for _, h := range in.History {
		if h.ID == d.ID || h.Request.ServiceCode != d.Request.ServiceCode {
			continue
		}
		if h.CreatedAt.Before(cutoff) {
			continue
		}
		switch {
		case h.IsActive():
			active = append(active, h)
		case h.Status == StatusApproved || h.Status == StatusDenied:
			resolved = append(resolved, h)
		}
	}
	if len(active) > 0 {
		res.Status = ValidationWarning
		res.Message = fmt.Sprintf("another active dispute for service code %s exists within the last 90 days", d.Request.ServiceCode)
		res.Details = map[string]interface{}{"active_dispute_id": active[0].ID.String()}
		return res
	}
	if len(resolved) > 0 {
		res.Status = ValidationWarning
		res.Message = fmt.Sprintf("a dispute for service code %s was resolved %s within the last 90 days", d.Request.ServiceCode, resolved[0].Status)
		res.Details = map[string]interface{}{
			"resolved_dispute_id": resolved[0].ID.String(),
			"resolved_status":     resolved[0].Status,
		}
		return res
	}
	res.Status = ValidationPassed
	res.Message = "no conflicting prior authorization disputes"
	return res
}
