package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

const uploadColumns = "id, uploader_id, mode, file_name, file_size, mime_type, file_hash, chunk_size, chunk_count, received, status, storage_provider, storage_key, expires_at, created_at, updated_at"

// UploadRepository provides database access for upload sessions.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository creates a new instance of UploadRepository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new upload session.
func (r *UploadRepository) Create(ctx context.Context, s *models.UploadSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Received == nil {
		s.Received = models.ChunkSet{}
	}
	const query = `INSERT INTO upload_sessions (id, uploader_id, mode, file_name, file_size, mime_type, file_hash, chunk_size, chunk_count, received, status, storage_provider, storage_key, expires_at, created_at, updated_at)
		VALUES (:id, :uploader_id, :mode, :file_name, :file_size, :mime_type, :file_hash, :chunk_size, :chunk_count, :received, :status, :storage_provider, :storage_key, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}
	return nil
}

// FindByID returns an upload session by identifier.
func (r *UploadRepository) FindByID(ctx context.Context, id string) (*models.UploadSession, error) {
	query := fmt.Sprintf("SELECT %s FROM upload_sessions WHERE id = $1 LIMIT 1", uploadColumns)
	var s models.UploadSession
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find upload session: %w", err)
	}
	return &s, nil
}

// AddChunk records a received chunk index on the session. The append happens
// inside the UPDATE so concurrent chunk PUTs cannot overwrite each other; a
// chunk that is already recorded leaves the row untouched.
func (r *UploadRepository) AddChunk(ctx context.Context, id string, index int) error {
	const query = `UPDATE upload_sessions SET received = received || to_jsonb($2::int), updated_at = $3
		WHERE id = $1 AND NOT received @> to_jsonb($2::int)`
	res, err := r.db.ExecContext(ctx, query, id, index, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add chunk: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add chunk: %w", err)
	}
	if affected == 0 {
		// Either the chunk was already recorded or the session is gone.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// MarkStored records where the uploaded bytes ended up and moves the session
// to the stored state.
func (r *UploadRepository) MarkStored(ctx context.Context, id, provider, key string) error {
	const query = `UPDATE upload_sessions SET status = $2, storage_provider = $3, storage_key = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.UploadStatusStored, provider, key, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark upload stored: %w", err)
	}
	return nil
}

// MarkUsed consumes a stored session for material creation. The status guard
// makes consumption single-shot under concurrent requests.
func (r *UploadRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE upload_sessions SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.UploadStatusUsed, time.Now().UTC(), models.UploadStatusStored)
	if err != nil {
		return false, fmt.Errorf("mark upload used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark upload used: %w", err)
	}
	return affected == 1, nil
}

// MarkAborted moves a session to the aborted state.
func (r *UploadRepository) MarkAborted(ctx context.Context, id string) error {
	const query = `UPDATE upload_sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.UploadStatusAborted, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark upload aborted: %w", err)
	}
	return nil
}

// ListExpired returns sessions past their deadline that still hold staged
// bytes, so the sweeper can reclaim them.
func (r *UploadRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.UploadSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM upload_sessions WHERE expires_at < $1 AND status IN ($2, $3) ORDER BY expires_at ASC LIMIT %d", uploadColumns, limit)
	var sessions []models.UploadSession
	if err := r.db.SelectContext(ctx, &sessions, query, now, models.UploadStatusPending, models.UploadStatusStored); err != nil {
		return nil, fmt.Errorf("list expired upload sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes an upload session row.
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM upload_sessions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete upload session: %w", err)
	}
	return nil
}
