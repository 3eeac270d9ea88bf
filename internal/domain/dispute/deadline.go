package dispute

import (
	"time"

	"github.com/google/uuid"
)

// Flag thresholds in whole days remaining.
const (
	urgentThresholdDays  = 3
	warningThresholdDays = 7
)

// DaysRemaining reports the signed whole-day distance from now to the
// deadline, rounded away from zero: a deadline 30 minutes out counts
// as one day remaining, one 30 minutes past counts as one day overdue
// (-1), and exactly at the deadline counts as zero.
func DaysRemaining(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) != 0 {
		if diff > 0 {
			days++
		} else {
			days--
		}
	}
	return int(days)
}

// CategoryFor maps a signed days-remaining count to a flag type, or ""
// when no flag is due. First match wins: overdue beats urgent beats
// warning.
func CategoryFor(days int) string {
	switch {
	case days < 0:
		return FlagOverdue
	case days <= urgentThresholdDays:
		return FlagUrgent
	case days <= warningThresholdDays:
		return FlagWarning
	default:
		return ""
	}
}

// UpdateDeadlineFlags reconciles the dispute's unresolved flag against
// the response deadline at now. If the one open flag already matches
// the target category and day count, nothing changes and FlaggedAt is
// preserved. Otherwise every open flag is marked resolved (history is
// never deleted) and, when a flag is due, a fresh one is appended.
// Escalation happens by replacement, never accumulation. Reports
// whether the unresolved flag set changed.
func UpdateDeadlineFlags(d *Dispute, now time.Time) bool {
	if d.Deadlines.ResponseDeadline.IsZero() {
		return ResolveOpenFlags(d, now) > 0
	}

	days := DaysRemaining(d.Deadlines.ResponseDeadline, now)
	target := CategoryFor(days)
	magnitude := days
	if magnitude < 0 {
		magnitude = -magnitude
	}

	var open []*DeadlineFlag
	for i := range d.Deadlines.Flags {
		if !d.Deadlines.Flags[i].Resolved {
			open = append(open, &d.Deadlines.Flags[i])
		}
	}
	if target != "" && len(open) == 1 && open[0].Type == target && open[0].DaysRemaining == magnitude {
		return false
	}

	changed := ResolveOpenFlags(d, now) > 0
	if target == "" {
		return changed
	}
	d.Deadlines.Flags = append(d.Deadlines.Flags, DeadlineFlag{
		ID:            uuid.New(),
		Type:          target,
		DaysRemaining: magnitude,
		FlaggedAt:     now,
	})
	return true
}

// ResolveFlag marks exactly one flag resolved by identity. Returns
// false when the id is unknown or the flag is already resolved. A
// resolved flag is never re-raised.
func ResolveFlag(d *Dispute, flagID uuid.UUID, now time.Time) bool {
	for i := range d.Deadlines.Flags {
		f := &d.Deadlines.Flags[i]
		if f.ID == flagID {
			if f.Resolved {
				return false
			}
			f.Resolved = true
			t := now
			f.ResolvedAt = &t
			return true
		}
	}
	return false
}

// ResolveOpenFlags marks every unresolved flag resolved and returns
// how many it closed. Deadline edits call this before re-running
// UpdateDeadlineFlags so no stale flag survives a date change.
func ResolveOpenFlags(d *Dispute, now time.Time) int {
	n := 0
	for i := range d.Deadlines.Flags {
		f := &d.Deadlines.Flags[i]
		if !f.Resolved {
			f.Resolved = true
			t := now
			f.ResolvedAt = &t
			n++
		}
	}
	return n
}
