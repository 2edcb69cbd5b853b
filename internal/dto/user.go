package dto

import "github.com/studyhub-io/studyhub-api/internal/models"

// UpdateUserRequest patches profile fields. Role and Active are honoured only
// when the caller is an admin.
type UpdateUserRequest struct {
	FullName   *string          `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Faculty    *string          `json:"faculty,omitempty" validate:"omitempty,max=128"`
	Department *string          `json:"department,omitempty" validate:"omitempty,max=128"`
	Role       *models.UserRole `json:"role,omitempty"`
	Active     *bool            `json:"active,omitempty"`
}

// LeaderboardEntry ranks users by reputation.
type LeaderboardEntry struct {
	UserID     string `json:"user_id" db:"user_id"`
	FullName   string `json:"full_name" db:"full_name"`
	Faculty    string `json:"faculty" db:"faculty"`
	Reputation int    `json:"reputation" db:"reputation"`
}
