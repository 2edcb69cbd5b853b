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

func TestCreateFlag(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFlagRepository(db)

	mock.ExpectExec("INSERT INTO flags").WillReturnResult(sqlmock.NewResult(1, 1))

	f := &models.Flag{MaterialID: "m1", ReporterID: "u1", Reason: models.FlagReasonSpam, Status: models.FlagStatusOpen}
	err := repo.Create(context.Background(), f)
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOpenFlag(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFlagRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM flags WHERE material_id = $1 AND reporter_id = $2 AND status = $3")).
		WithArgs("m1", "u1", string(models.FlagStatusOpen)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.HasOpenFlag(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveFlagGuardsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFlagRepository(db)

	mock.ExpectExec("UPDATE flags SET status =").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Resolve(context.Background(), "f1", models.FlagStatusUpheld, "mod1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFlagsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFlagRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "material_id", "reporter_id", "reason", "detail", "status", "resolver_id", "resolved_at", "created_at"}).
		AddRow("f1", "m1", "u1", string(models.FlagReasonCopyright), "looks lifted", string(models.FlagStatusOpen), nil, nil, now)
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE 1=1 AND status =").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM flags WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.FlagStatusOpen
	flags, total, err := repo.List(context.Background(), &status, 1, 20)
	require.NoError(t, err)
	assert.Len(t, flags, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
