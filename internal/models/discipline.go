package models

// SanctionTier names the escalating disciplinary measures.
type SanctionTier string

const (
	TierNormal              SanctionTier = "NORMAL"
	TierFirstWarning        SanctionTier = "FIRST_WARNING"
	TierSecondWarning       SanctionTier = "SECOND_WARNING"
	TierFirstNotice         SanctionTier = "FIRST_NOTICE"
	TierSecondNotice        SanctionTier = "SECOND_NOTICE"
	TierReprimand           SanctionTier = "REPRIMAND"
	TierTwoDaySuspension    SanctionTier = "TWO_DAY_SUSPENSION"
	TierTemporaryExclusion  SanctionTier = "TEMPORARY_EXCLUSION"
	TierDefinitiveExclusion SanctionTier = "DEFINITIVE_EXCLUSION"
)

// Sanction authorities: SC is the class council, CD the discipline council.
const (
	AuthorityNone = ""
	AuthoritySC   = "SC"
	AuthorityCD   = "CD"
)

// Sanction pairs a tier with the authority responsible for it.
type Sanction struct {
	Tier      SanctionTier `json:"tier"`
	Authority string       `json:"authority"`
	Color     string       `json:"color"`
}

// DisciplinaryAssessment is derived on demand from a trainee's
// attendance events; it is never persisted or mutated directly.
type DisciplinaryAssessment struct {
	TraineeID         string   `json:"trainee_id"`
	TotalAbsenceHours float64  `json:"total_absence_hours"`
	LateCount         int      `json:"late_count"`
	Note              float64  `json:"note"`
	Sanction          Sanction `json:"sanction"`
}
