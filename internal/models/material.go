package models

import "time"

// MaterialScope is the backend-enforced access level for a material.
type MaterialScope string

const (
	ScopePublic     MaterialScope = "PUBLIC"
	ScopeFaculty    MaterialScope = "FACULTY"
	ScopeDepartment MaterialScope = "DEPARTMENT"
	ScopeCourse     MaterialScope = "COURSE"
	ScopePrivate    MaterialScope = "PRIVATE"
)

// Valid reports whether the scope is one of the known levels.
func (s MaterialScope) Valid() bool {
	switch s {
	case ScopePublic, ScopeFaculty, ScopeDepartment, ScopeCourse, ScopePrivate:
		return true
	}
	return false
}

// MaterialStatus tracks the ingestion pipeline lifecycle.
type MaterialStatus string

const (
	MaterialStatusPending    MaterialStatus = "pending"
	MaterialStatusProcessing MaterialStatus = "processing"
	MaterialStatusReady      MaterialStatus = "ready"
	MaterialStatusFailed     MaterialStatus = "failed"
)

// Material is an uploaded study document.
type Material struct {
	ID              string         `db:"id" json:"id"`
	OwnerID         string         `db:"owner_id" json:"owner_id"`
	CourseID        *string        `db:"course_id" json:"course_id,omitempty"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Scope           MaterialScope  `db:"scope" json:"scope"`
	FileHash        string         `db:"file_hash" json:"file_hash"`
	FileName        string         `db:"file_name" json:"file_name"`
	FileSize        int64          `db:"file_size" json:"file_size"`
	MimeType        string         `db:"mime_type" json:"mime_type"`
	StorageProvider string         `db:"storage_provider" json:"-"`
	StorageKey      string         `db:"storage_key" json:"-"`
	Status          MaterialStatus `db:"status" json:"status"`
	Summary         string         `db:"summary" json:"summary,omitempty"`
	ErrorMessage    *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// MaterialFilter captures material list criteria. Viewer fields drive the
// scope visibility checks; they come from JWT claims, never the request.
type MaterialFilter struct {
	ViewerID         string
	ViewerFaculty    string
	ViewerDepartment string
	ViewerIsStaff    bool

	CourseID string
	OwnerID  string
	Status   *MaterialStatus
	Search   string
	Page     int
	PageSize int
}
