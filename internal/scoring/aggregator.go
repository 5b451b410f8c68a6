// Package scoring derives disciplinary assessments from raw attendance
// events. All functions are pure: no I/O, no shared state, and an empty
// event list always yields zero hours, a 20/20 note and the NORMAL tier.
package scoring

import (
	"math"
	"time"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

const (
	defaultFullDayHours     = 8.0
	defaultLateThreshold    = 4
	defaultLatePenaltyHours = 1.0

	maxNote          = 20.0
	hoursPerHalfStep = 2.5
	latesPerPoint    = 4
)

// Policy carries the tunable scoring rules. Zero values fall back to
// the canonical defaults when passed to New.
type Policy struct {
	// FullDayHours is charged for an unjustified absence with no
	// session window recorded.
	FullDayHours float64
	// LateThreshold is the total late count a trainee must reach
	// before late arrivals start converting into absence hours.
	LateThreshold int
	// LatePenaltyHours is the per-occurrence hour value applied once
	// the threshold is met.
	LatePenaltyHours float64
}

// DefaultPolicy returns the canonical scoring rules.
func DefaultPolicy() Policy {
	return Policy{
		FullDayHours:     defaultFullDayHours,
		LateThreshold:    defaultLateThreshold,
		LatePenaltyHours: defaultLatePenaltyHours,
	}
}

// Aggregator reduces a trainee's attendance events into hour totals,
// a 0-20 disciplinary note and a sanction tier.
type Aggregator struct {
	policy Policy
}

// New builds an aggregator, substituting defaults for unset policy fields.
func New(policy Policy) *Aggregator {
	if policy.FullDayHours <= 0 {
		policy.FullDayHours = defaultFullDayHours
	}
	if policy.LateThreshold <= 0 {
		policy.LateThreshold = defaultLateThreshold
	}
	if policy.LatePenaltyHours <= 0 {
		policy.LatePenaltyHours = defaultLatePenaltyHours
	}
	return &Aggregator{policy: policy}
}

// ComputeAbsenceHours totals the hour cost of the given events.
// Unjustified absences contribute their session window (or a full day
// when no window was recorded); late arrivals contribute
// LatePenaltyHours each, but only once the trainee has accumulated at
// least LateThreshold of them. Present and justified-absent events
// contribute nothing. The result is rounded half-up to one decimal.
func (a *Aggregator) ComputeAbsenceHours(events []models.AttendanceEvent) float64 {
	hours := 0.0
	lateCount := 0
	for _, ev := range events {
		if ev.Date.IsZero() {
			continue
		}
		switch ev.Status {
		case models.StatusAbsent:
			if !ev.IsJustified {
				hours += a.sessionHours(ev)
			}
		case models.StatusLate:
			lateCount++
		}
	}
	if lateCount >= a.policy.LateThreshold {
		hours += float64(lateCount) * a.policy.LatePenaltyHours
	}
	return round1(hours)
}

// ComputeDisciplinaryNote derives the 0-20 disciplinary note: half a
// point per started 2.5 hours of unjustified absence, plus one point
// per four late arrivals. The note never drops below 0 nor exceeds 20
// and is monotonically non-increasing in both inputs.
func (a *Aggregator) ComputeDisciplinaryNote(events []models.AttendanceEvent) float64 {
	unjustified := 0.0
	lateCount := 0
	for _, ev := range events {
		if ev.Date.IsZero() {
			continue
		}
		switch ev.Status {
		case models.StatusAbsent:
			if !ev.IsJustified {
				unjustified += a.sessionHours(ev)
			}
		case models.StatusLate:
			lateCount++
		}
	}
	unjustified = round1(unjustified)

	absenceDeduction := math.Floor(unjustified/hoursPerHalfStep) * 0.5
	latenessDeduction := math.Floor(float64(lateCount) / latesPerPoint)

	note := maxNote - absenceDeduction - latenessDeduction
	if note < 0 {
		note = 0
	}
	return round1(note)
}

// LateCount returns the unconditional number of late events.
func (a *Aggregator) LateCount(events []models.AttendanceEvent) int {
	count := 0
	for _, ev := range events {
		if !ev.Date.IsZero() && ev.Status == models.StatusLate {
			count++
		}
	}
	return count
}

// Assess bundles the full derived view for one trainee.
func (a *Aggregator) Assess(traineeID string, events []models.AttendanceEvent) models.DisciplinaryAssessment {
	note := a.ComputeDisciplinaryNote(events)
	return models.DisciplinaryAssessment{
		TraineeID:         traineeID,
		TotalAbsenceHours: a.ComputeAbsenceHours(events),
		LateCount:         a.LateCount(events),
		Note:              note,
		Sanction:          ClassifySanction(note),
	}
}

// ClassifySanction maps a disciplinary note to the sanction ladder.
// The table is keyed by points deducted from 20, rounded half-up.
func ClassifySanction(note float64) models.Sanction {
	deducted := int(math.Floor(maxNote - note + 0.5))
	switch {
	case deducted <= 0:
		return models.Sanction{Tier: models.TierNormal, Authority: models.AuthorityNone, Color: "#2e7d32"}
	case deducted == 1:
		return models.Sanction{Tier: models.TierFirstWarning, Authority: models.AuthoritySC, Color: "#f9a825"}
	case deducted == 2:
		return models.Sanction{Tier: models.TierSecondWarning, Authority: models.AuthoritySC, Color: "#f57f17"}
	case deducted == 3:
		return models.Sanction{Tier: models.TierFirstNotice, Authority: models.AuthorityCD, Color: "#ef6c00"}
	case deducted == 4:
		return models.Sanction{Tier: models.TierSecondNotice, Authority: models.AuthorityCD, Color: "#e65100"}
	case deducted == 5:
		return models.Sanction{Tier: models.TierReprimand, Authority: models.AuthorityCD, Color: "#d84315"}
	case deducted == 6:
		return models.Sanction{Tier: models.TierTwoDaySuspension, Authority: models.AuthorityCD, Color: "#c62828"}
	case deducted <= 10:
		return models.Sanction{Tier: models.TierTemporaryExclusion, Authority: models.AuthorityCD, Color: "#ad1457"}
	default:
		return models.Sanction{Tier: models.TierDefinitiveExclusion, Authority: models.AuthorityCD, Color: "#6a1b9a"}
	}
}

// SessionHours exposes the hour cost of a single unjustified absence,
// used when a stored event is re-priced after an edit.
func (a *Aggregator) SessionHours(startTime, endTime *string) float64 {
	return a.sessionHours(models.AttendanceEvent{
		Date:      time.Now(),
		StartTime: startTime,
		EndTime:   endTime,
		Status:    models.StatusAbsent,
	})
}

func (a *Aggregator) sessionHours(ev models.AttendanceEvent) float64 {
	if ev.StartTime == nil || ev.EndTime == nil {
		return a.policy.FullDayHours
	}
	start, okStart := parseClock(*ev.StartTime)
	end, okEnd := parseClock(*ev.EndTime)
	if !okStart || !okEnd || !end.After(start) {
		return a.policy.FullDayHours
	}
	return end.Sub(start).Hours()
}

func parseClock(raw string) (time.Time, bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
