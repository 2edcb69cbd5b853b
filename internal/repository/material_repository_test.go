package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

func materialRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "course_id", "title", "description", "scope", "file_hash", "file_name", "file_size", "mime_type", "storage_provider", "storage_key", "status", "summary", "error_message", "created_at", "updated_at"}).
		AddRow("m1", "u1", nil, "Lecture Notes", "", string(models.ScopePublic), "abc123", "notes.pdf", 2048, "application/pdf", "object", "materials/m1", string(models.MaterialStatusReady), "A summary.", nil, now, now)
}

func TestCreateMaterial(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectExec("INSERT INTO materials").WillReturnResult(sqlmock.NewResult(1, 1))

	m := &models.Material{OwnerID: "u1", Title: "Lecture Notes", Scope: models.ScopePublic, FileHash: "abc123", FileName: "notes.pdf", FileSize: 2048, MimeType: "application/pdf", Status: models.MaterialStatusPending}
	err := repo.Create(context.Background(), m)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindVisibleByHash(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM materials WHERE file_hash =").
		WillReturnRows(materialRows(time.Now()))

	filter := models.MaterialFilter{ViewerID: "u2", ViewerFaculty: "Engineering", ViewerDepartment: "Computer Science"}
	m, err := repo.FindVisibleByHash(context.Background(), "abc123", filter)
	require.NoError(t, err)
	assert.Equal(t, "abc123", m.FileHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindVisibleByHashNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM materials WHERE file_hash =").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindVisibleByHash(context.Background(), "missing", models.MaterialFilter{ViewerIsStaff: true})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMaterialsStaffSeesAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + materialColumns + " FROM materials WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(materialRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM materials WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	materials, total, err := repo.List(context.Background(), models.MaterialFilter{ViewerIsStaff: true})
	require.NoError(t, err)
	assert.Len(t, materials, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMaterialStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE materials SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("m1", string(models.MaterialStatusProcessing), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "m1", models.MaterialStatusProcessing, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(string(models.MaterialStatusReady), 7).
		AddRow(string(models.MaterialStatusFailed), 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM materials GROUP BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, counts[models.MaterialStatusReady])
	assert.Equal(t, 1, counts[models.MaterialStatusFailed])
	assert.NoError(t, mock.ExpectationsWereMet())
}
