package models

import "time"

// Group represents a training group (class) within a filière.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Field     string    `db:"field" json:"field"`
	Year      int       `db:"year" json:"year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GroupDetail extends Group with its trainee head-count.
type GroupDetail struct {
	Group
	TraineeCount int `db:"trainee_count" json:"trainee_count"`
}

// GroupFilter defines filter criteria for listing groups.
type GroupFilter struct {
	Field     string
	Year      *int
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
