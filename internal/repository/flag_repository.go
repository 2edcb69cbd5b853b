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

const flagColumns = "id, material_id, reporter_id, reason, detail, status, resolver_id, resolved_at, created_at"

// FlagRepository provides database access for moderation flags.
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository creates a new instance of FlagRepository.
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// Create inserts a new flag.
func (r *FlagRepository) Create(ctx context.Context, f *models.Flag) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO flags (id, material_id, reporter_id, reason, detail, status, resolver_id, resolved_at, created_at)
		VALUES (:id, :material_id, :reporter_id, :reason, :detail, :status, :resolver_id, :resolved_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("create flag: %w", err)
	}
	return nil
}

// FindByID returns a flag by identifier.
func (r *FlagRepository) FindByID(ctx context.Context, id string) (*models.Flag, error) {
	query := fmt.Sprintf("SELECT %s FROM flags WHERE id = $1 LIMIT 1", flagColumns)
	var f models.Flag
	if err := r.db.GetContext(ctx, &f, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find flag: %w", err)
	}
	return &f, nil
}

// HasOpenFlag reports whether the reporter already has an open flag on the
// material.
func (r *FlagRepository) HasOpenFlag(ctx context.Context, materialID, reporterID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM flags WHERE material_id = $1 AND reporter_id = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, materialID, reporterID, models.FlagStatusOpen); err != nil {
		return false, fmt.Errorf("count open flags: %w", err)
	}
	return count > 0, nil
}

// List returns flags filtered by status, newest first, with total count.
func (r *FlagRepository) List(ctx context.Context, status *models.FlagStatus, page, pageSize int) ([]models.Flag, int, error) {
	baseQuery := `FROM flags WHERE 1=1`
	var conditions []string
	var args []interface{}

	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", flagColumns, baseQuery, pageSize, offset)

	var flags []models.Flag
	if err := r.db.SelectContext(ctx, &flags, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list flags: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count flags: %w", err)
	}

	return flags, total, nil
}

// Resolve closes a flag with the given outcome. The status guard keeps
// already-resolved flags from being resolved twice.
func (r *FlagRepository) Resolve(ctx context.Context, id string, status models.FlagStatus, resolverID string) (bool, error) {
	const query = `UPDATE flags SET status = $2, resolver_id = $3, resolved_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, resolverID, time.Now().UTC(), models.FlagStatusOpen)
	if err != nil {
		return false, fmt.Errorf("resolve flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve flag: %w", err)
	}
	return affected == 1, nil
}

// CountByStatus returns flag counts grouped by status.
func (r *FlagRepository) CountByStatus(ctx context.Context) (map[models.FlagStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM flags GROUP BY status`
	rows := []struct {
		Status models.FlagStatus `db:"status"`
		Count  int               `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count flags by status: %w", err)
	}
	counts := make(map[models.FlagStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListByMaterial returns all flags against a material, newest first. Used by
// the moderation report export.
func (r *FlagRepository) ListByMaterial(ctx context.Context, materialID string) ([]models.Flag, error) {
	query := fmt.Sprintf("SELECT %s FROM flags WHERE material_id = $1 ORDER BY created_at DESC", flagColumns)
	var flags []models.Flag
	if err := r.db.SelectContext(ctx, &flags, query, materialID); err != nil {
		return nil, fmt.Errorf("list flags for material: %w", err)
	}
	return flags, nil
}
