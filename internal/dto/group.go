package dto

// CreateGroupRequest is the payload for creating a group.
type CreateGroupRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=64"`
	Field string `json:"field" validate:"required,min=2,max=128"`
	Year  int    `json:"year" validate:"required,min=2000,max=2100"`
}

// UpdateGroupRequest is the payload for updating a group.
type UpdateGroupRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=64"`
	Field string `json:"field" validate:"required,min=2,max=128"`
	Year  int    `json:"year" validate:"required,min=2000,max=2100"`
}
