package models

import "time"

// University is a top-level catalog entity managed by admins.
type University struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ShortName string    `db:"short_name" json:"short_name"`
	Country   string    `db:"country" json:"country"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Course ties materials to a faculty/department curriculum entry.
type Course struct {
	ID           string    `db:"id" json:"id"`
	UniversityID string    `db:"university_id" json:"university_id"`
	Faculty      string    `db:"faculty" json:"faculty"`
	Department   string    `db:"department" json:"department"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	UniversityID string
	Faculty      string
	Department   string
	Search       string
	Page         int
	PageSize     int
}
