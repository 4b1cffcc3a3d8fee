package dto

import "github.com/noah-isme/scholarship-api/internal/models"

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Applications    ApplicationsSection             `json:"applications"`
	Funnel          FunnelSection                   `json:"funnel"`
	Recommendations *models.RecommendationProgress  `json:"recommendations"`
	Evaluations     *models.EvaluationProgress      `json:"evaluations"`
	TopRankings     []models.ApplicationRanking     `json:"top_rankings"`
	StatusBreakdown []models.ApplicationStatusCount `json:"status_breakdown"`
}

// ApplicationsSection summarises overall application volume.
type ApplicationsSection struct {
	Total     int `json:"total"`
	Submitted int `json:"submitted"`
	Withdrawn int `json:"withdrawn"`
	Decided   int `json:"decided"`
}

// FunnelSection tracks how far applicants progress through the pipeline.
type FunnelSection struct {
	Started     int `json:"started"`
	Submitted   int `json:"submitted"`
	UnderReview int `json:"under_review"`
	Finalists   int `json:"finalists"`
	Selected    int `json:"selected"`
}
