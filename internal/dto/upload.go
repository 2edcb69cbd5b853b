package dto

import (
	"time"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// CreateUploadSessionRequest opens a chunked (resumable) upload.
type CreateUploadSessionRequest struct {
	FileName  string `json:"file_name" validate:"required"`
	FileSize  int64  `json:"file_size" validate:"required,gt=0"`
	MimeType  string `json:"mime_type" validate:"required"`
	FileHash  string `json:"file_hash" validate:"required,len=64,hexadecimal"`
	ChunkSize int64  `json:"chunk_size" validate:"required,gt=0"`
}

// UploadSessionResponse reports session progress for resume decisions.
type UploadSessionResponse struct {
	ID         string              `json:"id"`
	Status     models.UploadStatus `json:"status"`
	ChunkSize  int64               `json:"chunk_size"`
	ChunkCount int                 `json:"chunk_count"`
	Received   []int               `json:"received"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

// FromSession converts the persisted session into the wire shape.
func FromSession(s *models.UploadSession) UploadSessionResponse {
	received := make([]int, len(s.Received))
	copy(received, s.Received)
	return UploadSessionResponse{
		ID:         s.ID,
		Status:     s.Status,
		ChunkSize:  s.ChunkSize,
		ChunkCount: s.ChunkCount,
		Received:   received,
		ExpiresAt:  s.ExpiresAt,
	}
}
