package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/pkg/config"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/token"
)

type recommendationRepository interface {
	CreateWithQuota(ctx context.Context, rec *models.Recommendation, maxLive int) error
	FindByID(ctx context.Context, id string) (*models.Recommendation, error)
	FindByToken(ctx context.Context, tok string) (*models.Recommendation, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Recommendation, error)
	MarkViewed(ctx context.Context, id string, at time.Time) (bool, error)
	SubmitLetter(ctx context.Context, rec *models.Recommendation, at time.Time) (bool, error)
	ResetToken(ctx context.Context, id, tok string, expiresAt time.Time) (bool, error)
	RecordReminder(ctx context.Context, id string, at time.Time) error
	Withdraw(ctx context.Context, id string, at time.Time) (bool, error)
}

type applicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

// InviteRecommenderRequest creates one recommender invitation.
type InviteRecommenderRequest struct {
	RecommenderName  string                 `json:"recommender_name" validate:"required"`
	RecommenderEmail string                 `json:"recommender_email" validate:"required,email"`
	RecommenderType  models.RecommenderType `json:"recommender_type" validate:"required"`
	Organization     *string                `json:"organization"`
}

// SubmitLetterRequest finalises a recommendation via its token link.
type SubmitLetterRequest struct {
	LetterFileID    *string `json:"letter_file_id"`
	LetterText      *string `json:"letter_text"`
	RecommenderName string  `json:"recommender_name" validate:"required"`
	Organization    *string `json:"organization"`
}

// RecommendationService coordinates recommender invitations: quota-guarded
// creation, tokenized access, resends and reminder cooldowns.
type RecommendationService struct {
	repo      recommendationRepository
	apps      applicationReader
	audits    auditRecorder
	emails    *EmailService
	cfg       config.RecommendationsConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	generate  func() (string, error)
}

// NewRecommendationService constructs RecommendationService.
func NewRecommendationService(repo recommendationRepository, apps applicationReader, audits auditRecorder, emails *EmailService, cfg config.RecommendationsConfig, validate *validator.Validate, logger *zap.Logger) *RecommendationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxLive <= 0 {
		cfg.MaxLive = 2
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * 24 * time.Hour
	}
	if cfg.ReminderCooldown <= 0 {
		cfg.ReminderCooldown = 24 * time.Hour
	}
	return &RecommendationService{
		repo:      repo,
		apps:      apps,
		audits:    audits,
		emails:    emails,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		generate:  token.Generate,
	}
}

// Invite creates a recommendation and dispatches the tokenized email. The
// live-record quota is enforced transactionally so concurrent invites
// cannot exceed it.
func (s *RecommendationService) Invite(ctx context.Context, applicationID string, req InviteRecommenderRequest, actor *models.JWTClaims) (*models.Recommendation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invite payload")
	}
	if !req.RecommenderType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recommender type %q", req.RecommenderType))
	}
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && app.OwnerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	accessToken, err := s.generate()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}
	now := s.now()
	rec := &models.Recommendation{
		ApplicationID:    applicationID,
		Status:           models.RecommendationEmailSent,
		RecommenderName:  req.RecommenderName,
		RecommenderEmail: req.RecommenderEmail,
		RecommenderType:  req.RecommenderType,
		Organization:     req.Organization,
		AccessToken:      accessToken,
		TokenExpiresAt:   token.ExpiryFrom(now, s.cfg.TokenTTL),
	}
	if err := s.repo.CreateWithQuota(ctx, rec, s.cfg.MaxLive); err != nil {
		if errors.Is(err, repository.ErrRecommendationQuota) {
			return nil, appErrors.Clone(appErrors.ErrQuotaExceeded,
				fmt.Sprintf("application already has %d recommenders", s.cfg.MaxLive))
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recommendation")
	}

	s.dispatchInvite(EmailKindRecommendationInvite, rec, app)
	recordAudit(ctx, s.audits, s.logger, actor, &rec.ApplicationID, models.AuditActionRecommendationInvited, "recommendation", &rec.ID, map[string]interface{}{
		"recommender_email": rec.RecommenderEmail,
		"recommender_type":  rec.RecommenderType,
	})
	return rec, nil
}

// MarkViewed records that a recommender opened their link. Only the
// EMAIL_SENT to VIEWED edge changes state; repeated calls and calls on
// submitted letters are silent no-ops with no extra audit rows.
func (s *RecommendationService) MarkViewed(ctx context.Context, accessToken string) (*models.Recommendation, error) {
	rec, err := s.resolveToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	at := s.now()
	moved, err := s.repo.MarkViewed(ctx, rec.ID, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark recommendation viewed")
	}
	if moved {
		rec.Status = models.RecommendationViewed
		rec.ViewedAt = &at
		recordAudit(ctx, s.audits, s.logger, nil, &rec.ApplicationID, models.AuditActionRecommendationViewed, "recommendation", &rec.ID, nil)
	}
	return rec, nil
}

// SubmitLetter finalises the recommendation through its token link. A
// submitted letter can never be overwritten through this path.
func (s *RecommendationService) SubmitLetter(ctx context.Context, accessToken string, req SubmitLetterRequest) (*models.Recommendation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid letter payload")
	}
	if (req.LetterFileID == nil || *req.LetterFileID == "") && (req.LetterText == nil || *req.LetterText == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "letter file or text is required")
	}
	rec, err := s.resolveToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.RecommendationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrAlreadySubmitted, "letter already submitted")
	}

	rec.LetterFileID = req.LetterFileID
	rec.LetterText = req.LetterText
	rec.RecommenderName = req.RecommenderName
	rec.Organization = req.Organization

	at := s.now()
	ok, err := s.repo.SubmitLetter(ctx, rec, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit letter")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrAlreadySubmitted, "letter already submitted")
	}
	rec.Status = models.RecommendationSubmitted
	rec.SubmittedAt = &at
	recordAudit(ctx, s.audits, s.logger, nil, &rec.ApplicationID, models.AuditActionRecommendationSubmitted, "recommendation", &rec.ID, map[string]interface{}{
		"recommender_name": rec.RecommenderName,
	})
	return rec, nil
}

// Resend regenerates the token and re-dispatches the invitation email.
// The old link is deliberately invalidated; submitted letters stay closed.
func (s *RecommendationService) Resend(ctx context.Context, id string, actor *models.JWTClaims) (*models.Recommendation, error) {
	rec, err := s.loadForOwner(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.RecommendationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "letter already submitted")
	}

	accessToken, err := s.generate()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}
	now := s.now()
	expiresAt := token.ExpiryFrom(now, s.cfg.TokenTTL)
	ok, err := s.repo.ResetToken(ctx, rec.ID, accessToken, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset token")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "letter already submitted")
	}
	rec.AccessToken = accessToken
	rec.TokenExpiresAt = expiresAt
	rec.Status = models.RecommendationEmailSent
	rec.ResendCount++

	app, err := s.apps.FindByID(ctx, rec.ApplicationID)
	if err == nil {
		s.dispatchInvite(EmailKindRecommendationResend, rec, app)
	}
	recordAudit(ctx, s.audits, s.logger, actor, &rec.ApplicationID, models.AuditActionRecommendationResent, "recommendation", &rec.ID, map[string]interface{}{
		"resend_count": rec.ResendCount,
	})
	return rec, nil
}

// SendReminder nudges the recommender without touching status or token.
// Rate-limited by the configured cooldown against lastReminderAt.
func (s *RecommendationService) SendReminder(ctx context.Context, id string, actor *models.JWTClaims) (*models.Recommendation, error) {
	rec, err := s.loadForOwner(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.RecommendationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "letter already submitted")
	}
	now := s.now()
	if rec.LastReminderAt != nil && now.Sub(*rec.LastReminderAt) < s.cfg.ReminderCooldown {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("reminder already sent within the last %s", s.cfg.ReminderCooldown))
	}

	if err := s.repo.RecordReminder(ctx, rec.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reminder")
	}
	rec.EmailRemindersSent++
	rec.LastReminderAt = &now

	app, err := s.apps.FindByID(ctx, rec.ApplicationID)
	if err == nil {
		s.dispatchInvite(EmailKindRecommendationReminder, rec, app)
	}
	recordAudit(ctx, s.audits, s.logger, actor, &rec.ApplicationID, models.AuditActionRecommendationReminded, "recommendation", &rec.ID, map[string]interface{}{
		"reminders_sent": rec.EmailRemindersSent,
	})
	return rec, nil
}

// Cancel withdraws a pending recommendation, freeing its quota slot so the
// applicant can invite a replacement. The access token dies with it; a
// submitted letter cannot be cancelled.
func (s *RecommendationService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Recommendation, error) {
	rec, err := s.loadForOwner(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.RecommendationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "letter already submitted")
	}
	if rec.Withdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "recommendation already cancelled")
	}

	at := s.now()
	ok, err := s.repo.Withdraw(ctx, rec.ID, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel recommendation")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "letter already submitted")
	}
	rec.Withdrawn = true
	recordAudit(ctx, s.audits, s.logger, actor, &rec.ApplicationID, models.AuditActionRecommendationCancelled, "recommendation", &rec.ID, map[string]interface{}{
		"recommender_email": rec.RecommenderEmail,
	})
	return rec, nil
}

// ListByApplication returns the application's recommendations for the
// owner or staff.
func (s *RecommendationService) ListByApplication(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.Recommendation, error) {
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleApplicant && app.OwnerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	recs, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recommendations")
	}
	return recs, nil
}

func (s *RecommendationService) dispatchInvite(kind string, rec *models.Recommendation, app *models.Application) {
	if s.emails == nil {
		return
	}
	s.emails.Dispatch(kind, rec.RecommenderEmail, map[string]string{
		"recommender_name": rec.RecommenderName,
		"applicant_name":   fmt.Sprintf("%s %s", app.FirstName, app.LastName),
		"link":             s.emails.RecommendationLink(rec.AccessToken),
		"expires_at":       rec.TokenExpiresAt.Format(time.RFC3339),
	})
}

// resolveToken maps a raw access token to its live recommendation,
// distinguishing unknown tokens from expired ones.
func (s *RecommendationService) resolveToken(ctx context.Context, accessToken string) (*models.Recommendation, error) {
	if accessToken == "" {
		return nil, appErrors.ErrTokenInvalid
	}
	rec, err := s.repo.FindByToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenInvalid
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve token")
	}
	if rec.TokenExpired(s.now()) {
		return nil, appErrors.ErrTokenExpired
	}
	return rec, nil
}

func (s *RecommendationService) loadForOwner(ctx context.Context, id string, actor *models.JWTClaims) (*models.Recommendation, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recommendation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recommendation")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return rec, nil
	}
	app, err := s.apps.FindByID(ctx, rec.ApplicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.OwnerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return rec, nil
}
