package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// EvaluationRepository handles committee evaluation persistence.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository creates a new evaluation repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Upsert inserts or updates the evaluator's rating for an application. The
// unique (application_id, evaluator_id) constraint makes a concurrent
// double-submit collapse into a single row.
func (r *EvaluationRepository) Upsert(ctx context.Context, eval *models.Evaluation) error {
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = now
	}
	eval.UpdatedAt = now
	const query = `INSERT INTO evaluations (id, application_id, evaluator_id, rating, notes, created_at, updated_at)
        VALUES (:id, :application_id, :evaluator_id, :rating, :notes, :created_at, :updated_at)
        ON CONFLICT (application_id, evaluator_id)
        DO UPDATE SET rating = EXCLUDED.rating, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, eval); err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

// FindByPair returns the evaluation for one (application, evaluator) pair.
func (r *EvaluationRepository) FindByPair(ctx context.Context, applicationID, evaluatorID string) (*models.Evaluation, error) {
	const query = `SELECT id, application_id, evaluator_id, rating, notes, created_at, updated_at
        FROM evaluations WHERE application_id = $1 AND evaluator_id = $2 LIMIT 1`
	var eval models.Evaluation
	if err := r.db.GetContext(ctx, &eval, query, applicationID, evaluatorID); err != nil {
		return nil, err
	}
	return &eval, nil
}

// ListByApplication returns all evaluations of one application.
func (r *EvaluationRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Evaluation, error) {
	const query = `SELECT id, application_id, evaluator_id, rating, notes, created_at, updated_at
        FROM evaluations WHERE application_id = $1 ORDER BY created_at ASC`
	var evals []models.Evaluation
	if err := r.db.SelectContext(ctx, &evals, query, applicationID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return evals, nil
}

// Rankings aggregates mean rating per evaluated application. Ordering is
// fully deterministic: average desc, evaluation count desc, earliest
// submission asc, then application id as the final tie-break.
func (r *EvaluationRepository) Rankings(ctx context.Context) ([]models.ApplicationRanking, error) {
	const query = `SELECT e.application_id,
        TRIM(a.first_name || ' ' || a.last_name) AS applicant_name,
        AVG(CASE e.rating
            WHEN 'STRONG_NO' THEN 1
            WHEN 'NO' THEN 2
            WHEN 'MAYBE' THEN 3
            WHEN 'YES' THEN 4
            WHEN 'STRONG_YES' THEN 5
        END)::float AS average_rating,
        COUNT(*) AS evaluation_count,
        a.submitted_at
        FROM evaluations e
        JOIN applications a ON a.id = e.application_id
        WHERE a.submitted_at IS NOT NULL AND a.status <> $1
        GROUP BY e.application_id, a.first_name, a.last_name, a.submitted_at
        ORDER BY average_rating DESC, evaluation_count DESC, a.submitted_at ASC, e.application_id ASC`
	var rankings []models.ApplicationRanking
	if err := r.db.SelectContext(ctx, &rankings, query, models.StatusWithdrawn); err != nil {
		return nil, fmt.Errorf("evaluation rankings: %w", err)
	}
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings, nil
}

// CountAll returns the total number of evaluations on evaluable
// applications.
func (r *EvaluationRepository) CountAll(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM evaluations e
        JOIN applications a ON a.id = e.application_id
        WHERE a.submitted_at IS NOT NULL AND a.status <> $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, models.StatusWithdrawn); err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return total, nil
}

// CountByEvaluator returns how many evaluations one committee member has
// completed.
func (r *EvaluationRepository) CountByEvaluator(ctx context.Context, evaluatorID string) (int, error) {
	const query = `SELECT COUNT(*) FROM evaluations WHERE evaluator_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, evaluatorID); err != nil {
		return 0, fmt.Errorf("count evaluator evaluations: %w", err)
	}
	return total, nil
}
