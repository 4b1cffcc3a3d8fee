package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const adminDashboardCacheKey = "dash:admin"

type statusCounter interface {
	StatusCounts(ctx context.Context) ([]models.ApplicationStatusCount, error)
}

type recommendationProgressReader interface {
	Progress(ctx context.Context) (*models.RecommendationProgress, error)
}

type rankingsProvider interface {
	Rankings(ctx context.Context) ([]models.ApplicationRanking, error)
	Progress(ctx context.Context) (*models.EvaluationProgress, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	TopRankingsMax int
}

// DashboardService composes the admin overview: status breakdown, the
// applicant funnel, recommendation completion and evaluation progress.
type DashboardService struct {
	applications    statusCounter
	recommendations recommendationProgressReader
	evaluations     rankingsProvider
	cache           *CacheService
	logger          *zap.Logger
	cfg             DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Applications    statusCounter
	Recommendations recommendationProgressReader
	Evaluations     rankingsProvider
	Cache           *CacheService
	Logger          *zap.Logger
	Config          DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopRankingsMax <= 0 {
		cfg.TopRankingsMax = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		applications:    params.Applications,
		recommendations: params.Recommendations,
		evaluations:     params.Evaluations,
		cache:           params.Cache,
		logger:          logger,
		cfg:             cfg,
	}
}

// Admin returns the admin dashboard summary and indicates cache
// utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	if summary, hit, err := s.tryCache(ctx); err != nil {
		return nil, false, err
	} else if hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, summary)
	return summary, false, nil
}

func (s *DashboardService) tryCache(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached dto.AdminDashboardResponse
	hit, err := s.cache.Get(ctx, adminDashboardCacheKey, &cached)
	if err != nil {
		return nil, false, err
	}
	if hit {
		return &cached, true, nil
	}
	return nil, false, nil
}

func (s *DashboardService) persistCache(ctx context.Context, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, adminDashboardCacheKey, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	counts, err := s.applications.StatusCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status counts")
	}

	summary := &dto.AdminDashboardResponse{
		StatusBreakdown: counts,
		Applications:    buildApplicationsSection(counts),
		Funnel:          buildFunnelSection(counts),
	}

	if s.recommendations != nil {
		progress, err := s.recommendations.Progress(ctx)
		if err != nil {
			s.logger.Warn("recommendation progress fetch failed", zap.Error(err))
		} else {
			summary.Recommendations = progress
		}
	}

	if s.evaluations != nil {
		progress, err := s.evaluations.Progress(ctx)
		if err != nil {
			s.logger.Warn("evaluation progress fetch failed", zap.Error(err))
		} else {
			summary.Evaluations = progress
		}
		rankings, err := s.evaluations.Rankings(ctx)
		if err != nil {
			s.logger.Warn("rankings fetch failed", zap.Error(err))
		} else {
			if len(rankings) > s.cfg.TopRankingsMax {
				rankings = rankings[:s.cfg.TopRankingsMax]
			}
			summary.TopRankings = rankings
		}
	}
	return summary, nil
}

func buildApplicationsSection(counts []models.ApplicationStatusCount) dto.ApplicationsSection {
	section := dto.ApplicationsSection{}
	for _, row := range counts {
		section.Total += row.Count
		switch row.Status {
		case models.StatusSubmitted, models.StatusUnderReview, models.StatusFinalist:
			section.Submitted += row.Count
		case models.StatusWithdrawn:
			section.Withdrawn += row.Count
		case models.StatusSelected, models.StatusNotSelected:
			section.Submitted += row.Count
			section.Decided += row.Count
		}
	}
	return section
}

func buildFunnelSection(counts []models.ApplicationStatusCount) dto.FunnelSection {
	funnel := dto.FunnelSection{}
	for _, row := range counts {
		funnel.Started += row.Count
		switch row.Status {
		case models.StatusSubmitted:
			funnel.Submitted += row.Count
		case models.StatusUnderReview:
			funnel.UnderReview += row.Count
		case models.StatusFinalist:
			funnel.Finalists += row.Count
		case models.StatusSelected:
			funnel.Selected += row.Count
		case models.StatusNotSelected:
			funnel.UnderReview += row.Count
		}
	}
	// the funnel is cumulative left to right
	funnel.Finalists += funnel.Selected
	funnel.UnderReview += funnel.Finalists
	funnel.Submitted += funnel.UnderReview
	return funnel
}
