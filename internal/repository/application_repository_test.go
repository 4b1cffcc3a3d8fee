package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
)

func TestApplicationSubmitGuardsAgainstRetry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("app-1", models.StatusSubmitted, "Rosa Parks", at,
			models.StatusDraft, models.StatusInProgress, models.StatusPendingRecommendations).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Submit(context.Background(), "app-1", "Rosa Parks", at)
	require.NoError(t, err)
	assert.True(t, ok)

	// A retry matches no row because submitted_at is already set.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("app-1", models.StatusSubmitted, "Rosa Parks", at,
			models.StatusDraft, models.StatusInProgress, models.StatusPendingRecommendations).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Submit(context.Background(), "app-1", "Rosa Parks", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateStatusIsCompareAndSwap(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("app-1", models.StatusSubmitted, models.StatusUnderReview, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatus(context.Background(), "app-1", models.StatusSubmitted, models.StatusUnderReview)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationWithdrawRefusesDecidedStates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	at := time.Now().UTC()
	reason := "moved out of state"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("app-1", models.StatusWithdrawn, at, &reason,
			models.StatusSelected, models.StatusNotSelected, models.StatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Withdraw(context.Background(), "app-1", &reason, at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationStatusCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(string(models.StatusDraft), 5).
		AddRow(string(models.StatusSubmitted), 12)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM applications GROUP BY status ORDER BY status")).
		WillReturnRows(rows)

	counts, err := repo.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.StatusSubmitted, counts[1].Status)
	assert.Equal(t, 12, counts[1].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "owner_id", "status", "current_step", "created_at", "updated_at"}).
		AddRow("app-1", "user-1", string(models.StatusSubmitted), 7, now, now)
	mock.ExpectQuery("SELECT .* FROM applications WHERE 1=1 AND status = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs(models.StatusSubmitted).
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE 1=1 AND status = $1")).
		WithArgs(models.StatusSubmitted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCountEvaluable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE submitted_at IS NOT NULL AND status <> $1")).
		WithArgs(models.StatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountEvaluable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
