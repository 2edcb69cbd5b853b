package dto

// CreateUniversityRequest adds a catalog entry.
type CreateUniversityRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	ShortName string `json:"short_name" validate:"required,max=32"`
	Country   string `json:"country" validate:"max=64"`
}

// UpdateUniversityRequest patches mutable fields.
type UpdateUniversityRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ShortName *string `json:"short_name,omitempty" validate:"omitempty,max=32"`
	Country   *string `json:"country,omitempty" validate:"omitempty,max=64"`
}

// CreateCourseRequest adds a course under a university.
type CreateCourseRequest struct {
	UniversityID string `json:"university_id" validate:"required"`
	Faculty      string `json:"faculty" validate:"required,max=128"`
	Department   string `json:"department" validate:"required,max=128"`
	Code         string `json:"code" validate:"required,max=32"`
	Title        string `json:"title" validate:"required,max=200"`
}

// UpdateCourseRequest patches mutable fields.
type UpdateCourseRequest struct {
	Faculty    *string `json:"faculty,omitempty" validate:"omitempty,max=128"`
	Department *string `json:"department,omitempty" validate:"omitempty,max=128"`
	Code       *string `json:"code,omitempty" validate:"omitempty,max=32"`
	Title      *string `json:"title,omitempty" validate:"omitempty,max=200"`
}
