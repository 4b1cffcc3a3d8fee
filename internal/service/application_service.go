package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/eligibility"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type applicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByOwner(ctx context.Context, ownerID string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	Update(ctx context.Context, app *models.Application) error
	Submit(ctx context.Context, id, signature string, submittedAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error)
	Withdraw(ctx context.Context, id string, reason *string, at time.Time) (bool, error)
}

type recommendationLister interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.Recommendation, error)
}

type ownerReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type statusNotifier interface {
	Dispatch(kind, recipient string, variables map[string]string)
}

// Step update payloads. Step 6 (recommenders) is driven through the
// recommendation endpoints; step 7 is the review/sign step with no fields
// of its own.

// PersonalStepRequest carries step 1 fields.
type PersonalStepRequest struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
}

// AddressStepRequest carries step 2 fields.
type AddressStepRequest struct {
	Street             string `json:"street" validate:"required"`
	City               string `json:"city" validate:"required"`
	State              string `json:"state" validate:"required"`
	Zip                string `json:"zip" validate:"required"`
	IsMichiganResident bool   `json:"is_michigan_resident"`
}

// EducationStepRequest carries step 3 fields.
type EducationStepRequest struct {
	HighSchoolName string   `json:"high_school_name" validate:"required"`
	HighSchoolCity string   `json:"high_school_city" validate:"required"`
	GraduationDate string   `json:"graduation_date" validate:"required"`
	GPA            *float64 `json:"gpa" validate:"required,gte=0,lte=4"`
	CollegeName    string   `json:"college_name" validate:"required"`
	CollegeCity    string   `json:"college_city" validate:"required"`
	CollegeState   string   `json:"college_state" validate:"required"`
	YearInCollege  string   `json:"year_in_college" validate:"required"`
}

// EligibilityStepRequest carries step 4 booleans.
type EligibilityStepRequest struct {
	IsFullTimeStudent   bool `json:"is_full_time_student"`
	IsMichiganResident  bool `json:"is_michigan_resident"`
	IsFirstTimeApplying bool `json:"is_first_time_applying"`
	IsPreviousRecipient bool `json:"is_previous_recipient"`
}

// DocumentsStepRequest carries step 5 file references.
type DocumentsStepRequest struct {
	ProfilePhotoFileID *string `json:"profile_photo_file_id"`
	TranscriptFileID   *string `json:"transcript_file_id"`
	EssayFileID        *string `json:"essay_file_id"`
	EssayText          *string `json:"essay_text"`
	EssayWordCount     int     `json:"essay_word_count" validate:"gte=0"`
}

// SubmitApplicationRequest carries the electronic signature.
type SubmitApplicationRequest struct {
	Signature string `json:"signature" validate:"required"`
}

// WithdrawApplicationRequest optionally explains the withdrawal.
type WithdrawApplicationRequest struct {
	Reason *string `json:"reason"`
}

// SetStatusRequest moves an application through the review pipeline.
type SetStatusRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required"`
}

// StepResult pairs the stored application with any hard-disqualifier
// warnings the just-saved step surfaced.
type StepResult struct {
	Application   *models.Application       `json:"application"`
	Disqualifiers []eligibility.Requirement `json:"disqualifiers,omitempty"`
}

// ApplicationService orchestrates the application lifecycle: wizard
// progress, the eligibility checklist, the validated submit transition and
// the admin review pipeline.
type ApplicationService struct {
	repo      applicationRepository
	recs      recommendationLister
	users     ownerReader
	audits    auditRecorder
	emails    statusNotifier
	policy    eligibility.Policy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(repo applicationRepository, recs recommendationLister, users ownerReader, audits auditRecorder, emails statusNotifier, policy eligibility.Policy, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:      repo,
		recs:      recs,
		users:     users,
		audits:    audits,
		emails:    emails,
		policy:    policy,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an empty draft for the actor, or returns the existing one:
// the wizard owns at most one application per applicant.
func (s *ApplicationService) Create(ctx context.Context, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	existing, err := s.repo.FindByOwner(ctx, actor.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	app := &models.Application{OwnerID: actor.UserID, Status: models.StatusDraft, CurrentStep: models.StepMin}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	recordAudit(ctx, s.audits, s.logger, actor, &app.ID, models.AuditActionApplicationCreated, "application", &app.ID, map[string]interface{}{"status": app.Status})
	return app, nil
}

// Mine returns the actor's own application.
func (s *ApplicationService) Mine(ctx context.Context, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.FindByOwner(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// Get returns one application, enforcing owner visibility for applicants.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(app, actor); err != nil {
		return nil, err
	}
	return app, nil
}

// List returns applications for the admin/committee views.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStep applies one wizard step's fields. Hard disqualifiers (GPA,
// residency, full-time status) are surfaced in the result immediately
// rather than deferred to submit; the submit gate re-checks them anyway
// because steps can be revisited.
func (s *ApplicationService) UpdateStep(ctx context.Context, id string, step int, payload json.RawMessage, actor *models.JWTClaims) (*StepResult, error) {
	if step < models.StepMin || step > models.StepRecommender {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown step %d", step))
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(app, actor); err != nil {
		return nil, err
	}

	if err := s.applyStep(app, step, payload); err != nil {
		return nil, err
	}

	app.CurrentStep = step
	if !app.HasCompletedStep(step) {
		app.CompletedSteps = append(app.CompletedSteps, int64(step))
	}
	if app.Status == models.StatusDraft {
		app.Status = models.StatusInProgress
	}

	if err := s.repo.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	recordAudit(ctx, s.audits, s.logger, actor, &app.ID, models.AuditActionApplicationStepUpdated, "application", &app.ID, map[string]interface{}{"step": step})

	result := &StepResult{Application: app}
	for _, req := range eligibility.Disqualifiers(app, s.policy) {
		if !req.Met {
			result.Disqualifiers = append(result.Disqualifiers, req)
		}
	}
	return result, nil
}

// MarkStepComplete records a wizard step as done. Idempotent: marking an
// already-present step is a no-op, and steps may complete in any order.
func (s *ApplicationService) MarkStepComplete(ctx context.Context, id string, step int, actor *models.JWTClaims) (*models.Application, error) {
	if step < models.StepMin || step > models.StepMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown step %d", step))
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(app, actor); err != nil {
		return nil, err
	}
	if app.HasCompletedStep(step) {
		return app, nil
	}
	app.CompletedSteps = append(app.CompletedSteps, int64(step))
	if app.Status == models.StatusDraft {
		app.Status = models.StatusInProgress
	}
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	return app, nil
}

// Checklist recomputes the full requirements list. Side-effect free; the
// same computation gates Submit.
func (s *ApplicationService) Checklist(ctx context.Context, id string, actor *models.JWTClaims) (*eligibility.Checklist, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(app, actor); err != nil {
		return nil, err
	}
	recs, err := s.recs.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recommendations")
	}
	checklist := eligibility.ComputeChecklist(app, recs, s.policy)
	return &checklist, nil
}

// Submit performs the validated draft-to-submitted transition. Safe to
// retry: a second call on a submitted application returns
// ALREADY_SUBMITTED without touching submitted_at.
func (s *ApplicationService) Submit(ctx context.Context, id string, req SubmitApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submit payload")
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(app, actor); err != nil {
		return nil, err
	}

	recs, err := s.recs.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recommendations")
	}
	checklist := eligibility.ComputeChecklist(app, recs, s.policy)

	// Report every unmet requirement in one response, the signature
	// included, so the applicant never fixes them one round trip at a
	// time.
	unmet := checklist.UnmetIDs()
	if !signatureMatches(req.Signature, app.FirstName, app.LastName) {
		unmet = append(unmet, "signature")
	}
	if len(unmet) > 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "eligibility requirements not met"),
			map[string]interface{}{"unmet": unmet},
		)
	}

	submittedAt := s.now()
	signature := strings.TrimSpace(req.Signature)
	ok, err := s.repo.Submit(ctx, app.ID, signature, submittedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	if !ok {
		// Lost the race or retried after success; either way the
		// application is already past submission.
		return nil, appErrors.ErrAlreadySubmitted
	}

	app.Status = models.StatusSubmitted
	app.SubmittedAt = &submittedAt
	app.Signature = &signature
	recordAudit(ctx, s.audits, s.logger, actor, &app.ID, models.AuditActionApplicationSubmitted, "application", &app.ID, map[string]interface{}{
		"submitted_at": submittedAt.Format(time.RFC3339),
	})
	return app, nil
}

// Withdraw marks the application withdrawn. Allowed for the owner (or an
// admin) from any pre-decision state; terminal.
func (s *ApplicationService) Withdraw(ctx context.Context, id string, req WithdrawApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && app.OwnerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if !models.CanTransition(app.Status, models.StatusWithdrawn) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application already decided")
	}

	at := s.now()
	ok, err := s.repo.Withdraw(ctx, app.ID, req.Reason, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw application")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application already decided")
	}
	app.Status = models.StatusWithdrawn
	app.WithdrawnAt = &at
	app.WithdrawReason = req.Reason
	recordAudit(ctx, s.audits, s.logger, actor, &app.ID, models.AuditActionApplicationWithdrawn, "application", &app.ID, map[string]interface{}{"reason": req.Reason})
	return app, nil
}

// SetStatus moves an application through the review pipeline
// (UNDER_REVIEW, FINALIST, SELECTED, NOT_SELECTED). Admin only; the
// transition table is the arbiter of legality. Status emails are
// dispatched fire-and-forget.
func (s *ApplicationService) SetStatus(ctx context.Context, id string, req SetStatusRequest, actor *models.JWTClaims) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(app.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("cannot move from %s to %s", app.Status, req.Status))
	}

	ok, err := s.repo.UpdateStatus(ctx, app.ID, app.Status, req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application status changed concurrently")
	}

	previous := app.Status
	app.Status = req.Status
	recordAudit(ctx, s.audits, s.logger, actor, &app.ID, models.AuditActionApplicationStatusMoved, "application", &app.ID, map[string]interface{}{
		"from": previous,
		"to":   req.Status,
	})
	s.notifyStatus(ctx, app)
	return app, nil
}

func (s *ApplicationService) notifyStatus(ctx context.Context, app *models.Application) {
	if s.emails == nil || s.users == nil {
		return
	}
	owner, err := s.users.FindByID(ctx, app.OwnerID)
	if err != nil {
		s.logger.Warn("failed to load owner for status email", zap.String("application_id", app.ID), zap.Error(err))
		return
	}
	s.emails.Dispatch(EmailKindApplicationStatus, owner.Email, map[string]string{
		"applicant_name": owner.FullName,
		"status":         string(app.Status),
	})
}

func (s *ApplicationService) applyStep(app *models.Application, step int, payload json.RawMessage) error {
	switch step {
	case models.StepPersonal:
		var req PersonalStepRequest
		if err := s.decode(payload, &req); err != nil {
			return err
		}
		app.FirstName = req.FirstName
		app.LastName = req.LastName
		app.Phone = req.Phone
		app.DateOfBirth = req.DateOfBirth
	case models.StepAddress:
		var req AddressStepRequest
		if err := s.decode(payload, &req); err != nil {
			return err
		}
		app.Street = req.Street
		app.City = req.City
		app.State = req.State
		app.Zip = req.Zip
		app.IsMichiganResident = req.IsMichiganResident
	case models.StepEducation:
		var req EducationStepRequest
		if err := s.decode(payload, &req); err != nil {
			return err
		}
		if !models.ValidYearInCollege(req.YearInCollege) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown year in college %q", req.YearInCollege))
		}
		app.HighSchoolName = req.HighSchoolName
		app.HighSchoolCity = req.HighSchoolCity
		app.GraduationDate = req.GraduationDate
		app.GPA = req.GPA
		app.CollegeName = req.CollegeName
		app.CollegeCity = req.CollegeCity
		app.CollegeState = req.CollegeState
		app.YearInCollege = req.YearInCollege
	case models.StepEligibility:
		var req EligibilityStepRequest
		if err := s.decode(payload, &req); err != nil {
			return err
		}
		app.IsFullTimeStudent = req.IsFullTimeStudent
		app.IsMichiganResident = req.IsMichiganResident
		app.IsFirstTimeApplying = req.IsFirstTimeApplying
		app.IsPreviousRecipient = req.IsPreviousRecipient
	case models.StepDocuments:
		var req DocumentsStepRequest
		if err := s.decode(payload, &req); err != nil {
			return err
		}
		app.ProfilePhotoFileID = req.ProfilePhotoFileID
		app.TranscriptFileID = req.TranscriptFileID
		app.EssayFileID = req.EssayFileID
		app.EssayText = req.EssayText
		app.EssayWordCount = req.EssayWordCount
	case models.StepRecommender:
		// Recommenders are managed through the recommendation endpoints;
		// the step itself carries no fields.
	}
	return nil
}

func (s *ApplicationService) decode(payload json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(payload, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}
	if err := s.validator.Struct(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}
	return nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) authorizeRead(app *models.Application, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleApplicant && app.OwnerID != actor.UserID {
		return appErrors.ErrForbidden
	}
	return nil
}

// authorizeWrite enforces ownership and the post-submission immutability
// rule: once submitted_at is set, per-step fields are read-only to the
// owner. Admins may override.
func (s *ApplicationService) authorizeWrite(app *models.Application, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if app.OwnerID != actor.UserID {
		return appErrors.ErrForbidden
	}
	if app.SubmittedAt != nil {
		return appErrors.ErrAlreadySubmitted
	}
	if app.Status == models.StatusWithdrawn {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "application withdrawn")
	}
	return nil
}

// signatureMatches compares the electronic signature with the applicant
// name, both trimmed and case-insensitive.
func signatureMatches(signature, firstName, lastName string) bool {
	want := strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName)
	return strings.EqualFold(strings.TrimSpace(signature), want)
}
