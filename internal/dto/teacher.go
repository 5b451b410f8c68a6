package dto

// CreateTeacherRequest is the payload for creating a teacher.
type CreateTeacherRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2,max=128"`
	Subject  *string `json:"subject" validate:"omitempty,max=128"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

// UpdateTeacherRequest is the payload for updating a teacher.
type UpdateTeacherRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2,max=128"`
	Subject  *string `json:"subject" validate:"omitempty,max=128"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}
