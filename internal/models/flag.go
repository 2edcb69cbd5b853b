package models

import "time"

// FlagStatus tracks a moderation report's lifecycle.
type FlagStatus string

const (
	FlagStatusOpen      FlagStatus = "OPEN"
	FlagStatusUpheld    FlagStatus = "UPHELD"
	FlagStatusDismissed FlagStatus = "DISMISSED"
)

// FlagReason enumerates the supported report categories.
type FlagReason string

const (
	FlagReasonCopyright     FlagReason = "COPYRIGHT"
	FlagReasonInappropriate FlagReason = "INAPPROPRIATE"
	FlagReasonSpam          FlagReason = "SPAM"
	FlagReasonWrongCourse   FlagReason = "WRONG_COURSE"
	FlagReasonOther         FlagReason = "OTHER"
)

// Valid reports whether the reason is a known category.
func (r FlagReason) Valid() bool {
	switch r {
	case FlagReasonCopyright, FlagReasonInappropriate, FlagReasonSpam, FlagReasonWrongCourse, FlagReasonOther:
		return true
	}
	return false
}

// Flag is a moderation report against a material.
type Flag struct {
	ID         string     `db:"id" json:"id"`
	MaterialID string     `db:"material_id" json:"material_id"`
	ReporterID string     `db:"reporter_id" json:"reporter_id"`
	Reason     FlagReason `db:"reason" json:"reason"`
	Detail     string     `db:"detail" json:"detail"`
	Status     FlagStatus `db:"status" json:"status"`
	ResolverID *string    `db:"resolver_id" json:"resolver_id,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
