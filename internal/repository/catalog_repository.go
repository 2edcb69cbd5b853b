package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// CatalogRepository provides database access for universities and courses.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new instance of CatalogRepository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// CreateUniversity inserts a new university.
func (r *CatalogRepository) CreateUniversity(ctx context.Context, u *models.University) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	const query = `INSERT INTO universities (id, name, short_name, country, created_at, updated_at)
		VALUES (:id, :name, :short_name, :country, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("create university: %w", err)
	}
	return nil
}

// FindUniversityByID returns a university by identifier.
func (r *CatalogRepository) FindUniversityByID(ctx context.Context, id string) (*models.University, error) {
	const query = `SELECT id, name, short_name, country, created_at, updated_at FROM universities WHERE id = $1 LIMIT 1`
	var u models.University
	if err := r.db.GetContext(ctx, &u, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find university: %w", err)
	}
	return &u, nil
}

// ListUniversities returns all universities ordered by name.
func (r *CatalogRepository) ListUniversities(ctx context.Context) ([]models.University, error) {
	const query = `SELECT id, name, short_name, country, created_at, updated_at FROM universities ORDER BY name ASC`
	var list []models.University
	if err := r.db.SelectContext(ctx, &list, query); err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	return list, nil
}

// UpdateUniversity updates a university record.
func (r *CatalogRepository) UpdateUniversity(ctx context.Context, u *models.University) error {
	u.UpdatedAt = time.Now().UTC()
	const query = `UPDATE universities SET name = :name, short_name = :short_name, country = :country, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("update university: %w", err)
	}
	return nil
}

// DeleteUniversity removes a university.
func (r *CatalogRepository) DeleteUniversity(ctx context.Context, id string) error {
	const query = `DELETE FROM universities WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete university: %w", err)
	}
	return nil
}

// CreateCourse inserts a new course.
func (r *CatalogRepository) CreateCourse(ctx context.Context, c *models.Course) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const query = `INSERT INTO courses (id, university_id, code, title, faculty, department, created_at, updated_at)
		VALUES (:id, :university_id, :code, :title, :faculty, :department, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindCourseByID returns a course by identifier.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, university_id, code, title, faculty, department, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1`
	var c models.Course
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &c, nil
}

// ListCourses returns courses based on filters with total count.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UniversityID != "" {
		conditions = append(conditions, fmt.Sprintf("university_id = $%d", len(args)+1))
		args = append(args, filter.UniversityID)
	}
	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("faculty = $%d", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, university_id, code, title, faculty, department, created_at, updated_at %s ORDER BY code ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// UpdateCourse updates a course record.
func (r *CatalogRepository) UpdateCourse(ctx context.Context, c *models.Course) error {
	c.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, title = :title, faculty = :faculty, department = :department, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// DeleteCourse removes a course.
func (r *CatalogRepository) DeleteCourse(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}
