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

func TestRecommendationCreateWithQuotaInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM recommendations WHERE application_id = $1 AND withdrawn = FALSE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO recommendations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.Recommendation{
		ApplicationID:    "app-1",
		Status:           models.RecommendationEmailSent,
		RecommenderName:  "Dr. Alvarez",
		RecommenderEmail: "alvarez@example.edu",
		RecommenderType:  models.RecommenderEducator,
		AccessToken:      "token-1",
		TokenExpiresAt:   time.Now().Add(720 * time.Hour),
	}
	err := repo.CreateWithQuota(context.Background(), rec, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationCreateWithQuotaRefusesAtLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM recommendations WHERE application_id = $1 AND withdrawn = FALSE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.CreateWithQuota(context.Background(), &models.Recommendation{ApplicationID: "app-1"}, 2)
	assert.ErrorIs(t, err, ErrRecommendationQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationMarkViewedOnlyMovesEmailSent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET status = $2, viewed_at = $3, updated_at = $3")).
		WithArgs("rec-1", models.RecommendationViewed, at, models.RecommendationEmailSent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.MarkViewed(context.Background(), "rec-1", at)
	require.NoError(t, err)
	assert.True(t, moved)

	// Already viewed: guard matches nothing.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET status = $2, viewed_at = $3, updated_at = $3")).
		WithArgs("rec-1", models.RecommendationViewed, at, models.RecommendationEmailSent).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err = repo.MarkViewed(context.Background(), "rec-1", at)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationSubmitLetterNeverOverwrites(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	at := time.Now().UTC()
	text := "A remarkable student."
	rec := &models.Recommendation{ID: "rec-1", RecommenderName: "Dr. Alvarez", LetterText: &text}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET status = $2,")).
		WithArgs("rec-1", models.RecommendationSubmitted, nil, &text, "Dr. Alvarez", nil, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SubmitLetter(context.Background(), rec, at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationResetToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	expires := time.Now().Add(720 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET access_token = $2, token_expires_at = $3,")).
		WithArgs("rec-1", "token-2", expires, models.RecommendationEmailSent, sqlmock.AnyArg(), models.RecommendationSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ResetToken(context.Background(), "rec-1", "token-2", expires)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationWithdrawRefusesSubmitted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET withdrawn = TRUE, updated_at = $2")).
		WithArgs("rec-1", at, models.RecommendationSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Withdraw(context.Background(), "rec-1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	// Submitted or already withdrawn: guard matches nothing.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recommendations SET withdrawn = TRUE, updated_at = $2")).
		WithArgs("rec-1", at, models.RecommendationSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Withdraw(context.Background(), "rec-1", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	rows := sqlmock.NewRows([]string{"total", "submitted", "pending"}).AddRow(10, 6, 4)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total,")).
		WithArgs(models.RecommendationSubmitted).
		WillReturnRows(rows)

	progress, err := repo.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, progress.Total)
	assert.Equal(t, 6, progress.Submitted)
	assert.Equal(t, 4, progress.Pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}
