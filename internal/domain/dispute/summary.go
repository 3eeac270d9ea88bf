package dispute

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Summary buckets the active dispute population by deadline pressure.
type Summary struct {
	Overdue int             `json:"overdue"`
	Urgent  int             `json:"urgent"`
	Warning int             `json:"warning"`
	Total   int             `json:"total"`
	Details []SummaryDetail `json:"details"`
}

// SummaryDetail is one flagged dispute in a summary, most severe first.
type SummaryDetail struct {
	DisputeID        uuid.UUID `json:"dispute_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	RequestedService string    `json:"requested_service"`
	Deadline         time.Time `json:"deadline"`
	DaysRemaining    int       `json:"days_remaining"`
	Category         string    `json:"category"`
}

var severityRank = map[string]int{
	FlagOverdue: 0,
	FlagUrgent:  1,
	FlagWarning: 2,
}

// Summarize recomputes deadline pressure for every dispute live; it
// never reads stored flags, so it stays correct even when the monitor
// has not refreshed them yet. Total counts every input; disputes with
// no response deadline or outside all buckets contribute to Total
// only. Details are sorted by severity, stable within a category by
// input order.
func Summarize(disputes []*Dispute, now time.Time) Summary {
	s := Summary{Total: len(disputes), Details: make([]SummaryDetail, 0)}
	for _, d := range disputes {
		if d.Deadlines.ResponseDeadline.IsZero() {
			continue
		}
		days := DaysRemaining(d.Deadlines.ResponseDeadline, now)
		category := CategoryFor(days)
		switch category {
		case FlagOverdue:
			s.Overdue++
		case FlagUrgent:
			s.Urgent++
		case FlagWarning:
			s.Warning++
		default:
			continue
		}
		s.Details = append(s.Details, SummaryDetail{
			DisputeID:        d.ID,
			PatientID:        d.PatientID,
			RequestedService: d.Request.RequestedService,
			Deadline:         d.Deadlines.ResponseDeadline,
			DaysRemaining:    days,
			Category:         category,
		})
	}
	sort.SliceStable(s.Details, func(i, j int) bool {
		return severityRank[s.Details[i].Category] < severityRank[s.Details[j].Category]
	})
	return s
}
