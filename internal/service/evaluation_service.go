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
	"github.com/noah-isme/scholarship-api/pkg/config"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const rankingsCacheKey = "evaluations:rankings"

type evaluationRepository interface {
	Upsert(ctx context.Context, eval *models.Evaluation) error
	FindByPair(ctx context.Context, applicationID, evaluatorID string) (*models.Evaluation, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Evaluation, error)
	Rankings(ctx context.Context) ([]models.ApplicationRanking, error)
	CountAll(ctx context.Context) (int, error)
	CountByEvaluator(ctx context.Context, evaluatorID string) (int, error)
}

type evaluableCounter interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	CountEvaluable(ctx context.Context) (int, error)
}

// SubmitEvaluationRequest records or replaces a committee rating.
type SubmitEvaluationRequest struct {
	Rating models.EvaluationRating `json:"rating" validate:"required"`
	Notes  *string                 `json:"notes"`
}

// EvaluationService aggregates committee ratings into deterministic
// rankings. Re-evaluations replace the previous rating in place.
type EvaluationService struct {
	repo      evaluationRepository
	apps      evaluableCounter
	audits    auditRecorder
	cache     *CacheService
	cfg       config.EvaluationsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEvaluationService constructs EvaluationService.
func NewEvaluationService(repo evaluationRepository, apps evaluableCounter, audits auditRecorder, cache *CacheService, cfg config.EvaluationsConfig, validate *validator.Validate, logger *zap.Logger) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommitteeSize <= 0 {
		cfg.CommitteeSize = 5
	}
	if cfg.RankingsCacheTTL <= 0 {
		cfg.RankingsCacheTTL = 5 * time.Minute
	}
	return &EvaluationService{
		repo:      repo,
		apps:      apps,
		audits:    audits,
		cache:     cache,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// Submit records the actor's rating for an application, replacing any
// earlier rating by the same evaluator. Only submitted, non-withdrawn
// applications accept evaluations.
func (s *EvaluationService) Submit(ctx context.Context, applicationID string, req SubmitEvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	if !req.Rating.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown rating %q", req.Rating))
	}

	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !app.Status.Submitted() || app.Status == models.StatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application is not open for evaluation")
	}

	eval := &models.Evaluation{
		ApplicationID: applicationID,
		EvaluatorID:   actor.UserID,
		Rating:        req.Rating,
		Notes:         req.Notes,
	}
	if err := s.repo.Upsert(ctx, eval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save evaluation")
	}

	if err := s.cache.Invalidate(ctx, rankingsCacheKey); err != nil {
		s.logger.Warn("rankings cache invalidation failed", zap.Error(err))
	}
	recordAudit(ctx, s.audits, s.logger, actor, &eval.ApplicationID, models.AuditActionEvaluationSubmitted, "evaluation", &eval.ID, map[string]interface{}{
		"rating": eval.Rating,
	})
	return eval, nil
}

// Mine returns the actor's own evaluation of an application, or nil when
// they have not rated it yet.
func (s *EvaluationService) Mine(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.Evaluation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	eval, err := s.repo.FindByPair(ctx, applicationID, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	return eval, nil
}

// ListByApplication returns every committee rating on one application.
func (s *EvaluationService) ListByApplication(ctx context.Context, applicationID string) ([]models.Evaluation, error) {
	evals, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return evals, nil
}

// Rankings returns the deterministic ranking board, served from cache
// when fresh.
func (s *EvaluationService) Rankings(ctx context.Context) ([]models.ApplicationRanking, error) {
	var cached []models.ApplicationRanking
	if hit, err := s.cache.Get(ctx, rankingsCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	rankings, err := s.repo.Rankings(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute rankings")
	}
	if err := s.cache.Set(ctx, rankingsCacheKey, rankings, s.cfg.RankingsCacheTTL); err != nil {
		s.logger.Warn("rankings cache write failed", zap.Error(err))
	}
	return rankings, nil
}

// Progress reports committee-wide completion against the configured
// committee size.
func (s *EvaluationService) Progress(ctx context.Context) (*models.EvaluationProgress, error) {
	evaluable, err := s.apps.CountEvaluable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
	}
	total, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count evaluations")
	}
	return &models.EvaluationProgress{
		TotalApplications:   evaluable,
		TotalEvaluations:    total,
		PossibleEvaluations: evaluable * s.cfg.CommitteeSize,
	}, nil
}

// EvaluatorStats reports one committee member's completed and remaining
// evaluations.
func (s *EvaluationService) EvaluatorStats(ctx context.Context, evaluatorID string) (*models.EvaluatorStats, error) {
	evaluable, err := s.apps.CountEvaluable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
	}
	completed, err := s.repo.CountByEvaluator(ctx, evaluatorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count evaluator evaluations")
	}
	remaining := evaluable - completed
	if remaining < 0 {
		remaining = 0
	}
	return &models.EvaluatorStats{
		EvaluatorID: evaluatorID,
		Completed:   completed,
		Remaining:   remaining,
	}, nil
}
