package dispute

// checkOrder fixes the sequence the pre-submission checks run and
// report in. Every check always runs; nothing short-circuits.
var checkOrder = []func(*Dispute, CheckInput) CheckResult{
	checkCPTCode,
	checkICD10Code,
	checkDemographics,
	checkInsurance,
	checkMedicalNecessity,
	checkDocumentation,
	checkPriorAuthHistory,
}

// ValidationOutcome is the aggregate result of one validation run.
type ValidationOutcome struct {
	Checks        []CheckResult `json:"checks"`
	OverallStatus string        `json:"overall_status"`
	CanSubmit     bool          `json:"can_submit"`
}

// RunPreSubmissionValidation runs the full rule battery against the
// dispute and replaces its stored validation state wholesale. Missing
// auxiliary data surfaces as failed check results, never as an error.
// A failed check blocks submission; warnings do not.
func RunPreSubmissionValidation(d *Dispute, in CheckInput) ValidationOutcome {
	checks := make([]CheckResult, 0, len(checkOrder))
	for _, run := range checkOrder {
		checks = append(checks, run(d, in))
	}

	overall := ValidationPassed
	for _, c := range checks {
		if c.Status == ValidationFailed {
			overall = ValidationFailed
			break
		}
		if c.Status == ValidationWarning {
			overall = ValidationWarning
		}
	}

	outcome := ValidationOutcome{
		Checks:        checks,
		OverallStatus: overall,
		CanSubmit:     overall != ValidationFailed,
	}

	now := in.Now
	d.Validation.Checks = checks
	d.Validation.OverallStatus = overall
	d.Validation.CanSubmit = outcome.CanSubmit
	d.Validation.LastValidated = &now
	return outcome
}
