package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

func str(s string) *string { return &s }

func day(offset int) time.Time {
	return time.Date(2025, time.March, 3+offset, 0, 0, 0, 0, time.UTC)
}

func absent(offset int, justified bool, start, end *string) models.AttendanceEvent {
	return models.AttendanceEvent{
		TraineeID:   "CEF1001",
		Date:        day(offset),
		StartTime:   start,
		EndTime:     end,
		Status:      models.StatusAbsent,
		IsJustified: justified,
	}
}

func late(offset int) models.AttendanceEvent {
	return models.AttendanceEvent{TraineeID: "CEF1001", Date: day(offset), Status: models.StatusLate}
}

func TestAggregatorEmptyInput(t *testing.T) {
	agg := New(DefaultPolicy())

	assert.Equal(t, 0.0, agg.ComputeAbsenceHours(nil))
	assert.Equal(t, 20.0, agg.ComputeDisciplinaryNote(nil))
	assert.Equal(t, models.TierNormal, ClassifySanction(20).Tier)

	assessment := agg.Assess("CEF1001", []models.AttendanceEvent{})
	assert.Equal(t, 0.0, assessment.TotalAbsenceHours)
	assert.Equal(t, 20.0, assessment.Note)
	assert.Equal(t, models.TierNormal, assessment.Sanction.Tier)
}

func TestAggregatorFullDayAbsence(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{absent(0, false, nil, nil)}

	require.Equal(t, 8.0, agg.ComputeAbsenceHours(events))

	// floor(8/2.5)*0.5 = 1.5 deducted, so 18.5 and two points rounded.
	note := agg.ComputeDisciplinaryNote(events)
	require.Equal(t, 18.5, note)

	sanction := ClassifySanction(note)
	assert.Equal(t, models.TierSecondWarning, sanction.Tier)
	assert.Equal(t, models.AuthoritySC, sanction.Authority)
}

func TestAggregatorTimedAbsence(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{absent(0, false, str("08:30"), str("13:30"))}

	assert.Equal(t, 5.0, agg.ComputeAbsenceHours(events))
	assert.Equal(t, 19.0, agg.ComputeDisciplinaryNote(events))
}

func TestAggregatorJustifiedAbsenceContributesNothing(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{absent(0, true, str("08:30"), str("13:30"))}

	assert.Equal(t, 0.0, agg.ComputeAbsenceHours(events))
	assert.Equal(t, 20.0, agg.ComputeDisciplinaryNote(events))
}

func TestAggregatorLateThresholdPolicy(t *testing.T) {
	agg := New(DefaultPolicy())

	below := []models.AttendanceEvent{late(0), late(1), late(2)}
	assert.Equal(t, 0.0, agg.ComputeAbsenceHours(below), "lates below threshold cost no hours")
	assert.Equal(t, 20.0, agg.ComputeDisciplinaryNote(below))

	at := append(below, late(3))
	assert.Equal(t, 4.0, agg.ComputeAbsenceHours(at), "threshold met: one hour per late")
	assert.Equal(t, 19.0, agg.ComputeDisciplinaryNote(at))
	assert.Equal(t, 4, agg.LateCount(at))

	sanction := ClassifySanction(agg.ComputeDisciplinaryNote(at))
	assert.Equal(t, models.TierFirstWarning, sanction.Tier)
	assert.Equal(t, models.AuthoritySC, sanction.Authority)
}

func TestAggregatorCustomPolicy(t *testing.T) {
	agg := New(Policy{FullDayHours: 6, LateThreshold: 2, LatePenaltyHours: 0.5})

	events := []models.AttendanceEvent{absent(0, false, nil, nil), late(1), late(2)}
	// 6 full-day hours plus 2 lates at 0.5 each.
	assert.Equal(t, 7.0, agg.ComputeAbsenceHours(events))
}

func TestAggregatorSkipsMalformedEvents(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{
		{TraineeID: "CEF1001", Status: models.StatusAbsent}, // zero date
		absent(0, false, nil, nil),
	}

	assert.Equal(t, 8.0, agg.ComputeAbsenceHours(events))
}

func TestAggregatorInvalidWindowFallsBackToFullDay(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{absent(0, false, str("13:30"), str("08:30"))}

	assert.Equal(t, 8.0, agg.ComputeAbsenceHours(events))
}

func TestAggregatorIdempotent(t *testing.T) {
	agg := New(DefaultPolicy())
	events := []models.AttendanceEvent{absent(0, false, nil, nil), late(1), late(2), late(3), late(4)}

	first := agg.ComputeAbsenceHours(events)
	second := agg.ComputeAbsenceHours(events)
	assert.Equal(t, first, second)
}

func TestAggregatorNoteMonotoneAndBounded(t *testing.T) {
	agg := New(DefaultPolicy())

	events := make([]models.AttendanceEvent, 0, 40)
	prev := agg.ComputeDisciplinaryNote(events)
	for i := 0; i < 40; i++ {
		events = append(events, absent(i, false, nil, nil))
		note := agg.ComputeDisciplinaryNote(events)
		assert.LessOrEqual(t, note, prev, "adding an unjustified absence must never raise the note")
		assert.GreaterOrEqual(t, note, 0.0)
		assert.LessOrEqual(t, note, 20.0)
		prev = note
	}
	assert.Equal(t, 0.0, prev, "40 full days deduct far beyond the scale")
}

func TestClassifySanctionLadder(t *testing.T) {
	cases := []struct {
		note      float64
		tier      models.SanctionTier
		authority string
	}{
		{20, models.TierNormal, models.AuthorityNone},
		{19, models.TierFirstWarning, models.AuthoritySC},
		{18.5, models.TierSecondWarning, models.AuthoritySC},
		{17, models.TierFirstNotice, models.AuthorityCD},
		{16, models.TierSecondNotice, models.AuthorityCD},
		{15, models.TierReprimand, models.AuthorityCD},
		{14, models.TierTwoDaySuspension, models.AuthorityCD},
		{13, models.TierTemporaryExclusion, models.AuthorityCD},
		{10, models.TierTemporaryExclusion, models.AuthorityCD},
		{9, models.TierDefinitiveExclusion, models.AuthorityCD},
		{0, models.TierDefinitiveExclusion, models.AuthorityCD},
	}

	for _, tc := range cases {
		sanction := ClassifySanction(tc.note)
		assert.Equal(t, tc.tier, sanction.Tier, "note %.1f", tc.note)
		assert.Equal(t, tc.authority, sanction.Authority, "note %.1f", tc.note)
		assert.NotEmpty(t, sanction.Color)
	}
}
