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

const materialColumns = "id, owner_id, course_id, title, description, scope, file_hash, file_name, file_size, mime_type, storage_provider, storage_key, status, summary, error_message, created_at, updated_at"

// MaterialRepository provides database access for study materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository creates a new instance of MaterialRepository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts a new material record.
func (r *MaterialRepository) Create(ctx context.Context, m *models.Material) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	const query = `INSERT INTO materials (id, owner_id, course_id, title, description, scope, file_hash, file_name, file_size, mime_type, storage_provider, storage_key, status, summary, error_message, created_at, updated_at)
		VALUES (:id, :owner_id, :course_id, :title, :description, :scope, :file_hash, :file_name, :file_size, :mime_type, :storage_provider, :storage_key, :status, :summary, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// FindByID returns a material by identifier.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.Material, error) {
	query := fmt.Sprintf("SELECT %s FROM materials WHERE id = $1 LIMIT 1", materialColumns)
	var m models.Material
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find material: %w", err)
	}
	return &m, nil
}

// FindVisibleByHash returns the first material a viewer can see with the
// given content hash. Used by the duplicate pre-check before uploading.
func (r *MaterialRepository) FindVisibleByHash(ctx context.Context, hash string, filter models.MaterialFilter) (*models.Material, error) {
	where, args := visibilityClause(filter, 1)
	query := fmt.Sprintf("SELECT %s FROM materials WHERE file_hash = $%d AND %s ORDER BY created_at ASC LIMIT 1", materialColumns, len(args)+1, where)
	args = append(args, hash)
	var m models.Material
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find material by hash: %w", err)
	}
	return &m, nil
}

// List returns materials visible to the viewer, with total count.
func (r *MaterialRepository) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	where, args := visibilityClause(filter, 1)
	conditions := []string{where}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	baseQuery := "FROM materials WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", materialColumns, baseQuery, pageSize, offset)

	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list materials: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count materials: %w", err)
	}

	return materials, total, nil
}

// visibilityClause builds the scope check for a viewer. Staff members see
// everything; students see their own materials plus anything shared at a
// level their profile matches.
func visibilityClause(filter models.MaterialFilter, firstArg int) (string, []interface{}) {
	if filter.ViewerIsStaff {
		return "1=1", nil
	}
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", firstArg+len(args)-1)
	}
	clauses := []string{
		fmt.Sprintf("owner_id = %s", next(filter.ViewerID)),
		fmt.Sprintf("scope = '%s'", models.ScopePublic),
	}
	if filter.ViewerFaculty != "" {
		clauses = append(clauses, fmt.Sprintf("(scope = '%s' AND owner_id IN (SELECT id FROM users WHERE faculty = %s))", models.ScopeFaculty, next(filter.ViewerFaculty)))
	}
	if filter.ViewerDepartment != "" {
		clauses = append(clauses, fmt.Sprintf("(scope = '%s' AND owner_id IN (SELECT id FROM users WHERE department = %s))", models.ScopeDepartment, next(filter.ViewerDepartment)))
	}
	if filter.ViewerDepartment != "" {
		clauses = append(clauses, fmt.Sprintf("(scope = '%s' AND course_id IN (SELECT id FROM courses WHERE department = %s))", models.ScopeCourse, next(filter.ViewerDepartment)))
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// UpdateStatus transitions a material's pipeline state.
func (r *MaterialRepository) UpdateStatus(ctx context.Context, id string, status models.MaterialStatus, errorMessage *string) error {
	const query = `UPDATE materials SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, errorMessage, time.Now().UTC()); err != nil {
		return fmt.Errorf("update material status: %w", err)
	}
	return nil
}

// UpdateSummary stores the generated summary and marks the material ready.
func (r *MaterialRepository) UpdateSummary(ctx context.Context, id, summary string) error {
	const query = `UPDATE materials SET summary = $2, status = $3, error_message = NULL, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, summary, models.MaterialStatusReady, time.Now().UTC()); err != nil {
		return fmt.Errorf("update material summary: %w", err)
	}
	return nil
}

// Update updates mutable metadata of a material.
func (r *MaterialRepository) Update(ctx context.Context, m *models.Material) error {
	m.UpdatedAt = time.Now().UTC()
	const query = `UPDATE materials SET title = :title, description = :description, scope = :scope, course_id = :course_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	return nil
}

// Delete removes a material row.
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM materials WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return nil
}

// FindByIDs returns materials matching the given identifiers.
func (r *MaterialRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM materials WHERE id IN (?)", materialColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build materials by ids query: %w", err)
	}
	query = r.db.Rebind(query)
	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, query, args...); err != nil {
		return nil, fmt.Errorf("find materials by ids: %w", err)
	}
	return materials, nil
}

// CountByStatus returns material counts grouped by pipeline status.
func (r *MaterialRepository) CountByStatus(ctx context.Context) (map[models.MaterialStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM materials GROUP BY status`
	rows := []struct {
		Status models.MaterialStatus `db:"status"`
		Count  int                   `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count materials by status: %w", err)
	}
	counts := make(map[models.MaterialStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// TotalStorageBytes returns the sum of stored file sizes.
func (r *MaterialRepository) TotalStorageBytes(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(file_size), 0) FROM materials`
	var total int64
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("total storage bytes: %w", err)
	}
	return total, nil
}
