package dto

import (
	"time"

	"github.com/studyhub-io/studyhub-api/pkg/jobs"
)

// AdminStatsResponse aggregates the dashboard counters.
type AdminStatsResponse struct {
	Users             int            `json:"users"`
	Materials         int            `json:"materials"`
	Conversations     int            `json:"conversations"`
	Quizzes           int            `json:"quizzes"`
	OpenFlags         int            `json:"open_flags"`
	MaterialsByStatus map[string]int `json:"materials_by_status"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// QueueStatusResponse exposes worker queue gauges.
type QueueStatusResponse struct {
	Queues []jobs.Stats `json:"queues"`
}

// BulkDeleteRequest names the materials to remove.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100"`
}

// BulkDeleteResult reports the per-id outcome of a bulk delete.
type BulkDeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// ResolveFlagRequest closes a moderation report.
type ResolveFlagRequest struct {
	Action string `json:"action" validate:"required,oneof=UPHELD DISMISSED"`
}
