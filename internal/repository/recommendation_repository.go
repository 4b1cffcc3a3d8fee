package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// ErrRecommendationQuota signals the caller tried to exceed the live
// recommendation limit for an application.
var ErrRecommendationQuota = errors.New("recommendation quota reached")

const recommendationColumns = `id, application_id, status,
        recommender_name, recommender_email, recommender_type, organization,
        access_token, token_expires_at,
        letter_file_id, letter_text, submitted_at, viewed_at,
        resend_count, email_reminders_sent, last_reminder_at,
        withdrawn, created_at, updated_at`

// RecommendationRepository handles recommender invitation persistence.
type RecommendationRepository struct {
	db *sqlx.DB
}

// NewRecommendationRepository creates a new recommendation repository.
func NewRecommendationRepository(db *sqlx.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

// CreateWithQuota inserts a recommendation while holding a row lock on the
// parent application, so concurrent invites cannot race past the live
// record limit. Returns ErrRecommendationQuota when the limit is reached.
func (r *RecommendationRepository) CreateWithQuota(ctx context.Context, rec *models.Recommendation, maxLive int) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invite tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var appID string
	if err := tx.GetContext(ctx, &appID, `SELECT id FROM applications WHERE id = $1 FOR UPDATE`, rec.ApplicationID); err != nil {
		return err
	}

	var live int
	if err := tx.GetContext(ctx, &live, `SELECT COUNT(*) FROM recommendations WHERE application_id = $1 AND withdrawn = FALSE`, rec.ApplicationID); err != nil {
		return fmt.Errorf("count live recommendations: %w", err)
	}
	if live >= maxLive {
		return ErrRecommendationQuota
	}

	const query = `INSERT INTO recommendations (id, application_id, status,
        recommender_name, recommender_email, recommender_type, organization,
        access_token, token_expires_at, resend_count, email_reminders_sent, withdrawn, created_at, updated_at)
        VALUES (:id, :application_id, :status,
        :recommender_name, :recommender_email, :recommender_type, :organization,
        :access_token, :token_expires_at, :resend_count, :email_reminders_sent, :withdrawn, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create recommendation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invite tx: %w", err)
	}
	return nil
}

// FindByID returns a recommendation by identifier.
func (r *RecommendationRepository) FindByID(ctx context.Context, id string) (*models.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE id = $1 LIMIT 1`, recommendationColumns)
	var rec models.Recommendation
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByToken returns the recommendation currently holding the given
// access token. Resend replaces tokens, so a stale token matches nothing.
func (r *RecommendationRepository) FindByToken(ctx context.Context, token string) (*models.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE access_token = $1 AND withdrawn = FALSE LIMIT 1`, recommendationColumns)
	var rec models.Recommendation
	if err := r.db.GetContext(ctx, &rec, query, token); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByApplication returns all recommendations for an application,
// oldest first.
func (r *RecommendationRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE application_id = $1 ORDER BY created_at ASC`, recommendationColumns)
	var recs []models.Recommendation
	if err := r.db.SelectContext(ctx, &recs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}

// MarkViewed transitions EMAIL_SENT to VIEWED. The status guard keeps the
// operation a no-op for repeated calls or already-submitted letters, so no
// duplicate audit entries are produced upstream.
func (r *RecommendationRepository) MarkViewed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE recommendations SET status = $2, viewed_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.RecommendationViewed, at, models.RecommendationEmailSent)
	if err != nil {
		return false, fmt.Errorf("mark recommendation viewed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark recommendation viewed rows: %w", err)
	}
	return affected == 1, nil
}

// SubmitLetter finalises the recommendation. The guard excludes
// already-submitted records so a letter can never be overwritten.
func (r *RecommendationRepository) SubmitLetter(ctx context.Context, rec *models.Recommendation, at time.Time) (bool, error) {
	const query = `UPDATE recommendations SET status = $2,
        letter_file_id = $3, letter_text = $4,
        recommender_name = $5, organization = $6,
        submitted_at = $7, updated_at = $7
        WHERE id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, rec.ID, models.RecommendationSubmitted,
		rec.LetterFileID, rec.LetterText, rec.RecommenderName, rec.Organization, at)
	if err != nil {
		return false, fmt.Errorf("submit recommendation letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("submit recommendation letter rows: %w", err)
	}
	return affected == 1, nil
}

// ResetToken installs a fresh token and expiry, resets status to
// EMAIL_SENT and bumps the resend counter. Refused for submitted letters.
func (r *RecommendationRepository) ResetToken(ctx context.Context, id, token string, expiresAt time.Time) (bool, error) {
	const query = `UPDATE recommendations SET access_token = $2, token_expires_at = $3,
        status = $4, resend_count = resend_count + 1, updated_at = $5
        WHERE id = $1 AND status <> $6`
	res, err := r.db.ExecContext(ctx, query, id, token, expiresAt,
		models.RecommendationEmailSent, time.Now().UTC(), models.RecommendationSubmitted)
	if err != nil {
		return false, fmt.Errorf("reset recommendation token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset recommendation token rows: %w", err)
	}
	return affected == 1, nil
}

// Withdraw flags a recommendation withdrawn, freeing its quota slot for a
// replacement invite. Submitted letters are immutable so the guard refuses
// them, as it does repeated withdrawals.
func (r *RecommendationRepository) Withdraw(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE recommendations SET withdrawn = TRUE, updated_at = $2
        WHERE id = $1 AND status <> $3 AND withdrawn = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, models.RecommendationSubmitted)
	if err != nil {
		return false, fmt.Errorf("withdraw recommendation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("withdraw recommendation rows: %w", err)
	}
	return affected == 1, nil
}

// RecordReminder bumps the reminder counter and timestamp without touching
// status or token.
func (r *RecommendationRepository) RecordReminder(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE recommendations SET email_reminders_sent = email_reminders_sent + 1,
        last_reminder_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("record recommendation reminder: %w", err)
	}
	return nil
}

// Progress returns platform-wide letter completion counts for dashboards.
func (r *RecommendationRepository) Progress(ctx context.Context) (*models.RecommendationProgress, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = $1) AS submitted,
        COUNT(*) FILTER (WHERE status <> $1) AS pending
        FROM recommendations WHERE withdrawn = FALSE`
	var progress models.RecommendationProgress
	if err := r.db.GetContext(ctx, &progress, query, models.RecommendationSubmitted); err != nil {
		return nil, fmt.Errorf("recommendation progress: %w", err)
	}
	return &progress, nil
}
