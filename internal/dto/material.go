package dto

import (
	"time"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// CheckDuplicateRequest asks whether an identical file already exists.
type CheckDuplicateRequest struct {
	FileHash string `json:"file_hash" validate:"required,len=64,hexadecimal"`
}

// CheckDuplicateResponse reports an exact-hash match visible to the caller.
type CheckDuplicateResponse struct {
	Duplicate  bool    `json:"duplicate"`
	MaterialID *string `json:"material_id,omitempty"`
}

// PresignRequest reserves a one-shot signed upload slot.
type PresignRequest struct {
	FileName string `json:"file_name" validate:"required"`
	FileSize int64  `json:"file_size" validate:"required,gt=0"`
	MimeType string `json:"mime_type" validate:"required"`
	FileHash string `json:"file_hash" validate:"required,len=64,hexadecimal"`
}

// PresignResponse carries the signed PUT target for a direct upload.
type PresignResponse struct {
	UploadID  string    `json:"upload_id"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateMaterialRequest promotes a stored upload into a material record.
type CreateMaterialRequest struct {
	UploadID    string               `json:"upload_id" validate:"required"`
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=2000"`
	Scope       models.MaterialScope `json:"scope" validate:"required"`
	CourseID    *string              `json:"course_id,omitempty"`
}

// DownloadURLResponse carries a short-lived signed download link.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FlagMaterialRequest files a moderation report.
type FlagMaterialRequest struct {
	Reason models.FlagReason `json:"reason" validate:"required"`
	Detail string            `json:"detail" validate:"max=1000"`
}
