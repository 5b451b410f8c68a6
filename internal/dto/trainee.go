package dto

// CreateTraineeRequest is the payload for registering a trainee. The ID
// field carries the trainee's CEF code.
type CreateTraineeRequest struct {
	ID        string  `json:"id" validate:"required,min=2,max=32"`
	LastName  string  `json:"last_name" validate:"required,min=1,max=64"`
	FirstName string  `json:"first_name" validate:"required,min=1,max=64"`
	GroupID   string  `json:"group_id" validate:"required,uuid4"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
}

// UpdateTraineeRequest is the payload for updating a trainee.
type UpdateTraineeRequest struct {
	LastName  string  `json:"last_name" validate:"required,min=1,max=64"`
	FirstName string  `json:"first_name" validate:"required,min=1,max=64"`
	GroupID   string  `json:"group_id" validate:"required,uuid4"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
}

// ImportRosterRequest carries a raw delimited roster payload. GroupID is
// optional: when present every imported trainee lands in that group, when
// absent the group column of the file decides, with groups created on
// first sight. StartRow overrides the index of the first data row for
// files carrying extra banner lines above the header (default 1).
type ImportRosterRequest struct {
	Content  string  `json:"content" validate:"required"`
	GroupID  *string `json:"group_id" validate:"omitempty,uuid4"`
	StartRow int     `json:"start_row" validate:"omitempty,min=1,max=100"`
}

// ImportRosterResponse summarises the outcome of a roster import.
type ImportRosterResponse struct {
	Imported      int               `json:"imported"`
	Skipped       int               `json:"skipped"`
	CreatedGroups []string          `json:"created_groups,omitempty"`
	Errors        []ImportRowError  `json:"errors,omitempty"`
	Mapping       map[string]int    `json:"mapping"`
	Generated     map[string]string `json:"generated_ids,omitempty"`
}

// ImportRowError reports a single roster row that could not be imported.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}
