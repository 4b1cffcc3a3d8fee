package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

const applicationColumns = `id, owner_id, status, current_step, completed_steps,
        first_name, last_name, phone, date_of_birth,
        street, city, state, zip,
        high_school_name, high_school_city, graduation_date, gpa,
        college_name, college_city, college_state, year_in_college,
        is_full_time_student, is_michigan_resident, is_first_time_applying, is_previous_recipient,
        profile_photo_file_id, transcript_file_id, essay_file_id, essay_text, essay_word_count,
        signature, submitted_at, withdrawn_at, withdraw_reason, created_at, updated_at`

// ApplicationRepository handles scholarship application persistence.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new application repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts an empty draft application for the owner.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.StatusDraft
	}
	if app.CurrentStep == 0 {
		app.CurrentStep = models.StepMin
	}
	const query = `INSERT INTO applications (id, owner_id, status, current_step, completed_steps, created_at, updated_at)
        VALUES (:id, :owner_id, :status, :current_step, :completed_steps, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByOwner returns the owner's application, if any. The wizard creates
// at most one application per user.
func (r *ApplicationRepository) FindByOwner(ctx context.Context, ownerID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE owner_id = $1 ORDER BY created_at ASC LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, ownerID); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the filter with a total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	baseQuery := `FROM applications WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "submitted_at": true, "last_name": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", applicationColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// Update persists the mutable step fields plus wizard progress. Submission
// metadata is owned by Submit and Withdraw below.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET
        status = :status, current_step = :current_step, completed_steps = :completed_steps,
        first_name = :first_name, last_name = :last_name, phone = :phone, date_of_birth = :date_of_birth,
        street = :street, city = :city, state = :state, zip = :zip,
        high_school_name = :high_school_name, high_school_city = :high_school_city, graduation_date = :graduation_date, gpa = :gpa,
        college_name = :college_name, college_city = :college_city, college_state = :college_state, year_in_college = :year_in_college,
        is_full_time_student = :is_full_time_student, is_michigan_resident = :is_michigan_resident,
        is_first_time_applying = :is_first_time_applying, is_previous_recipient = :is_previous_recipient,
        profile_photo_file_id = :profile_photo_file_id, transcript_file_id = :transcript_file_id,
        essay_file_id = :essay_file_id, essay_text = :essay_text, essay_word_count = :essay_word_count,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

// Submit performs the atomic draft-to-submitted transition. The status
// guard in the WHERE clause makes concurrent submits race-safe: only one
// caller observes an affected row.
func (r *ApplicationRepository) Submit(ctx context.Context, id, signature string, submittedAt time.Time) (bool, error) {
	const query = `UPDATE applications
        SET status = $2, signature = $3, submitted_at = $4, updated_at = $4
        WHERE id = $1 AND submitted_at IS NULL
          AND status IN ($5, $6, $7)`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusSubmitted, signature, submittedAt,
		models.StatusDraft, models.StatusInProgress, models.StatusPendingRecommendations)
	if err != nil {
		return false, fmt.Errorf("submit application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("submit application rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus moves an application to a new review status. Legality is
// checked by the service against the transition table before calling.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error) {
	const query = `UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update application status rows: %w", err)
	}
	return affected == 1, nil
}

// Withdraw marks the application withdrawn. Guarded against decided states
// so a decision is never overwritten.
func (r *ApplicationRepository) Withdraw(ctx context.Context, id string, reason *string, at time.Time) (bool, error) {
	const query = `UPDATE applications
        SET status = $2, withdrawn_at = $3, withdraw_reason = $4, updated_at = $3
        WHERE id = $1 AND status NOT IN ($5, $6, $7)`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusWithdrawn, at, reason,
		models.StatusSelected, models.StatusNotSelected, models.StatusWithdrawn)
	if err != nil {
		return false, fmt.Errorf("withdraw application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("withdraw application rows: %w", err)
	}
	return affected == 1, nil
}

// StatusCounts returns the dashboard status breakdown.
func (r *ApplicationRepository) StatusCounts(ctx context.Context) ([]models.ApplicationStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM applications GROUP BY status ORDER BY status`
	var counts []models.ApplicationStatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("application status counts: %w", err)
	}
	return counts, nil
}

// CountEvaluable counts applications eligible for committee review
// (submitted or later, not withdrawn).
func (r *ApplicationRepository) CountEvaluable(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM applications WHERE submitted_at IS NOT NULL AND status <> $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, models.StatusWithdrawn); err != nil {
		return 0, fmt.Errorf("count evaluable applications: %w", err)
	}
	return total, nil
}
