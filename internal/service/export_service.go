package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/export"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

type rankingsReader interface {
	Rankings(ctx context.Context) ([]models.ApplicationRanking, error)
}

type applicationLister interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	StatusCounts(ctx context.Context) ([]models.ApplicationStatusCount, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	rankings        rankingsReader
	applications    applicationLister
	recommendations recommendationProgressReader
	storage         fileStorage
	csv             csvRenderer
	pdf             pdfRenderer
	signer          *storage.SignedURLSigner
	logger          *zap.Logger
	cfg             ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Rankings        rankingsReader
	Applications    applicationLister
	Recommendations recommendationProgressReader
	Storage         fileStorage
	Signer          *storage.SignedURLSigner
	Config          ExportConfig
	Logger          *zap.Logger
	CSV             csvRenderer
	PDF             pdfRenderer
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		rankings:        params.Rankings,
		applications:    params.Applications,
		recommendations: params.Recommendations,
		storage:         params.Storage,
		csv:             csv,
		pdf:             pdf,
		signer:          params.Signer,
		logger:          logger,
		cfg:             cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", strings.ToLower(string(job.Type)), timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeRankings:
		return s.buildRankingsDataset(ctx)
	case models.ReportTypeApplications:
		return s.buildApplicationsDataset(ctx, job.Params)
	case models.ReportTypeRecommendations:
		return s.buildRecommendationsDataset(ctx)
	case models.ReportTypeSummary:
		return s.buildSummaryDataset(ctx)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildRankingsDataset(ctx context.Context) (export.Dataset, string, error) {
	rankings, err := s.rankings.Rankings(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(rankings))
	for _, row := range rankings {
		rows = append(rows, map[string]string{
			"Rank":           fmt.Sprintf("%d", row.Rank),
			"Application ID": row.ApplicationID,
			"Applicant":      row.ApplicantName,
			"Average Rating": fmt.Sprintf("%.2f / 5.0", row.AverageRating),
			"Evaluations":    fmt.Sprintf("%d", row.EvaluationCount),
			"Submitted At":   formatReportTime(row.SubmittedAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Rank", "Application ID", "Applicant", "Average Rating", "Evaluations", "Submitted At"},
		Rows:    rows,
	}
	return dataset, "Committee Rankings", nil
}

func (s *ExportService) buildApplicationsDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.ApplicationFilter{}
	if params.Status != nil {
		filter.Status = *params.Status
	}
	apps, _, err := s.applications.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(apps))
	for _, app := range apps {
		gpa := ""
		if app.GPA != nil {
			gpa = fmt.Sprintf("%.2f", *app.GPA)
		}
		rows = append(rows, map[string]string{
			"Application ID": app.ID,
			"Applicant":      strings.TrimSpace(app.FirstName + " " + app.LastName),
			"Status":         string(app.Status),
			"GPA":            gpa,
			"Submitted At":   formatReportTime(app.SubmittedAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Application ID", "Applicant", "Status", "GPA", "Submitted At"},
		Rows:    rows,
	}
	title := "Applications"
	if params.Status != nil {
		title = fmt.Sprintf("Applications (%s)", *params.Status)
	}
	return dataset, title, nil
}

func (s *ExportService) buildRecommendationsDataset(ctx context.Context) (export.Dataset, string, error) {
	progress, err := s.recommendations.Progress(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := []map[string]string{
		{"Metric": "Total Invitations", "Value": fmt.Sprintf("%d", progress.Total)},
		{"Metric": "Letters Submitted", "Value": fmt.Sprintf("%d", progress.Submitted)},
		{"Metric": "Letters Pending", "Value": fmt.Sprintf("%d", progress.Pending)},
	}
	dataset := export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}
	return dataset, "Recommendation Progress", nil
}

func (s *ExportService) buildSummaryDataset(ctx context.Context) (export.Dataset, string, error) {
	counts, err := s.applications.StatusCounts(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(counts))
	total := 0
	for _, row := range counts {
		total += row.Count
		rows = append(rows, map[string]string{
			"Status": string(row.Status),
			"Count":  fmt.Sprintf("%d", row.Count),
		})
	}
	rows = append(rows, map[string]string{
		"Status": "TOTAL",
		"Count":  fmt.Sprintf("%d", total),
	})
	dataset := export.Dataset{
		Headers: []string{"Status", "Count"},
		Rows:    rows,
	}
	return dataset, "Application Summary", nil
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
