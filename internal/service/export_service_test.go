package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/export"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

type rankingsStub struct{}

func (rankingsStub) Rankings(ctx context.Context) ([]models.ApplicationRanking, error) {
	submitted := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return []models.ApplicationRanking{
		{ApplicationID: "app-1", ApplicantName: "Jordan Ellis", AverageRating: 4.6, EvaluationCount: 5, SubmittedAt: &submitted, Rank: 1},
		{ApplicationID: "app-2", ApplicantName: "Sam Porter", AverageRating: 3.8, EvaluationCount: 5, SubmittedAt: &submitted, Rank: 2},
	}, nil
}

type applicationListerStub struct{}

func (applicationListerStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	gpa := 3.4
	submitted := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return []models.Application{
		{ID: "app-1", FirstName: "Jordan", LastName: "Ellis", Status: models.StatusSubmitted, GPA: &gpa, SubmittedAt: &submitted},
	}, 1, nil
}

func (applicationListerStub) StatusCounts(ctx context.Context) ([]models.ApplicationStatusCount, error) {
	return []models.ApplicationStatusCount{
		{Status: models.StatusDraft, Count: 3},
		{Status: models.StatusSubmitted, Count: 7},
	}, nil
}

type recommendationProgressStub struct{}

func (recommendationProgressStub) Progress(ctx context.Context) (*models.RecommendationProgress, error) {
	return &models.RecommendationProgress{Total: 10, Submitted: 6, Pending: 4}, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(ExportServiceParams{
		Rankings:        rankingsStub{},
		Applications:    applicationListerStub{},
		Recommendations: recommendationProgressStub{},
		Storage:         store,
		Signer:          signer,
		Config:          ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour},
		Logger:          zap.NewNop(),
		CSV:             export.NewCSVExporter(),
		PDF:             export.NewPDFExporter(),
	})
	return svc, store
}

func TestExportServiceGenerateRankingsCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeRankings,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/export/")

	path := store.Path(result.RelativePath)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateSummaryPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeSummary,
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateApplicationsCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	status := models.StatusSubmitted
	job := &models.ReportJob{
		ID:        "job-3",
		Type:      models.ReportTypeApplications,
		Params:    models.ReportJobParams{Status: &status, Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatCSV, result.Format)
}

func TestExportServiceGenerateUnsupportedType(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   "unknown",
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
