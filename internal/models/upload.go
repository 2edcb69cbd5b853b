package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UploadMode distinguishes one-shot signed PUTs from chunked sessions.
type UploadMode string

const (
	UploadModeSingle  UploadMode = "single"
	UploadModeChunked UploadMode = "chunked"
)

// UploadStatus tracks an upload session's lifecycle.
type UploadStatus string

const (
	UploadStatusPending UploadStatus = "pending"
	UploadStatusStored  UploadStatus = "stored"
	UploadStatusUsed    UploadStatus = "used"
	UploadStatusAborted UploadStatus = "aborted"
)

// ChunkSet records which chunk indexes have been received, persisted as JSONB.
type ChunkSet []int

// Value marshals the set to JSON for persistence.
func (c ChunkSet) Value() (driver.Value, error) {
	if c == nil {
		c = ChunkSet{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk set: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the set.
func (c *ChunkSet) Scan(value interface{}) error {
	if value == nil {
		*c = ChunkSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ChunkSet", value)
	}
	if len(data) == 0 {
		*c = ChunkSet{}
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal chunk set: %w", err)
	}
	return nil
}

// Has reports whether the chunk index is present.
func (c ChunkSet) Has(n int) bool {
	for _, v := range c {
		if v == n {
			return true
		}
	}
	return false
}

// UploadSession is the durable record behind both upload paths. The declared
// SHA-256 hash is fixed at presign time and verified against the assembled
// bytes before the session can back a material.
type UploadSession struct {
	ID              string       `db:"id" json:"id"`
	UploaderID      string       `db:"uploader_id" json:"uploader_id"`
	Mode            UploadMode   `db:"mode" json:"mode"`
	FileName        string       `db:"file_name" json:"file_name"`
	FileSize        int64        `db:"file_size" json:"file_size"`
	MimeType        string       `db:"mime_type" json:"mime_type"`
	FileHash        string       `db:"file_hash" json:"file_hash"`
	ChunkSize       int64        `db:"chunk_size" json:"chunk_size,omitempty"`
	ChunkCount      int          `db:"chunk_count" json:"chunk_count,omitempty"`
	Received        ChunkSet     `db:"received" json:"received,omitempty"`
	Status          UploadStatus `db:"status" json:"status"`
	StorageProvider string       `db:"storage_provider" json:"-"`
	StorageKey      string       `db:"storage_key" json:"-"`
	ExpiresAt       time.Time    `db:"expires_at" json:"expires_at"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}
