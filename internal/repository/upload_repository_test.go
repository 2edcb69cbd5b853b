package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

func uploadRows(now time.Time, received string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "uploader_id", "mode", "file_name", "file_size", "mime_type", "file_hash", "chunk_size", "chunk_count", "received", "status", "storage_provider", "storage_key", "expires_at", "created_at", "updated_at"}).
		AddRow("s1", "u1", string(models.UploadModeChunked), "big.pdf", 1<<24, "application/pdf", "deadbeef", 1<<22, 4, []byte(received), string(models.UploadStatusPending), "", "", now.Add(time.Hour), now, now)
}

func TestCreateUploadSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectExec("INSERT INTO upload_sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	s := &models.UploadSession{UploaderID: "u1", Mode: models.UploadModeSingle, FileName: "notes.pdf", FileSize: 2048, MimeType: "application/pdf", FileHash: "abc123", Status: models.UploadStatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.Create(context.Background(), s)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddChunkRecordsNewIndex(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	// The append and the already-present guard run in one statement, so
	// parallel chunk PUTs cannot clobber each other's writes.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE upload_sessions SET received = received || to_jsonb($2::int), updated_at = $3")).
		WithArgs("s1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AddChunk(context.Background(), "s1", 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddChunkSkipsDuplicates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	// Zero rows touched: the guard saw the chunk, the session lookup
	// distinguishes that from a missing session.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE upload_sessions SET received = received || to_jsonb($2::int), updated_at = $3")).
		WithArgs("s1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM upload_sessions WHERE id =").
		WillReturnRows(uploadRows(time.Now(), "[1,2]"))

	err := repo.AddChunk(context.Background(), "s1", 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsedIsSingleShot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectExec("UPDATE upload_sessions SET status =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE upload_sessions SET status =").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkUsed(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM upload_sessions WHERE expires_at <").
		WillReturnRows(uploadRows(time.Now().Add(-2*time.Hour), "[]"))

	sessions, err := repo.ListExpired(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
