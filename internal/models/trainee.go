package models

import "time"

// Trainee represents a learner registered in a group. The ID is the
// trainee's CEF code, the national training-center identifier.
type Trainee struct {
	ID        string    `db:"id" json:"id"`
	LastName  string    `db:"last_name" json:"last_name"`
	FirstName string    `db:"first_name" json:"first_name"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TraineeDetail adds group context to a trainee row.
type TraineeDetail struct {
	Trainee
	GroupName *string `db:"group_name" json:"group_name,omitempty"`
}

// TraineeFilter encapsulates allowed search parameters for listing trainees.
type TraineeFilter struct {
	Search    string
	GroupID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
