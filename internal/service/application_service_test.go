package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/eligibility"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type mockApplicationRepo struct {
	apps        map[string]*models.Application
	byOwner     map[string]string
	createErr   error
	updateErr   error
	submitErr   error
	submitDeny  bool
	updateCalls int
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.apps == nil {
		m.apps = make(map[string]*models.Application)
	}
	if m.byOwner == nil {
		m.byOwner = make(map[string]string)
	}
	if app.ID == "" {
		app.ID = "app-1"
	}
	copy := *app
	m.apps[app.ID] = &copy
	m.byOwner[app.OwnerID] = app.ID
	return nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.apps[id]; ok {
		copy := *app
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindByOwner(ctx context.Context, ownerID string) (*models.Application, error) {
	if id, ok := m.byOwner[ownerID]; ok {
		return m.FindByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var apps []models.Application
	for _, app := range m.apps {
		apps = append(apps, *app)
	}
	return apps, len(apps), nil
}

func (m *mockApplicationRepo) Update(ctx context.Context, app *models.Application) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updateCalls++
	copy := *app
	m.apps[app.ID] = &copy
	return nil
}

func (m *mockApplicationRepo) Submit(ctx context.Context, id, signature string, submittedAt time.Time) (bool, error) {
	if m.submitErr != nil {
		return false, m.submitErr
	}
	app, ok := m.apps[id]
	if !ok || m.submitDeny || app.SubmittedAt != nil {
		return false, nil
	}
	at := submittedAt
	sig := signature
	app.Status = models.StatusSubmitted
	app.SubmittedAt = &at
	app.Signature = &sig
	return true, nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error) {
	app, ok := m.apps[id]
	if !ok || app.Status != from {
		return false, nil
	}
	app.Status = to
	return true, nil
}

func (m *mockApplicationRepo) Withdraw(ctx context.Context, id string, reason *string, at time.Time) (bool, error) {
	app, ok := m.apps[id]
	if !ok || app.Status.Decided() {
		return false, nil
	}
	when := at
	app.Status = models.StatusWithdrawn
	app.WithdrawnAt = &when
	app.WithdrawReason = reason
	return true, nil
}

type mockRecommendationLister struct {
	recs []models.Recommendation
	err  error
}

func (m *mockRecommendationLister) ListByApplication(ctx context.Context, applicationID string) ([]models.Recommendation, error) {
	return m.recs, m.err
}

type mockStatusNotifier struct {
	kinds      []string
	recipients []string
}

func (m *mockStatusNotifier) Dispatch(kind, recipient string, variables map[string]string) {
	m.kinds = append(m.kinds, kind)
	m.recipients = append(m.recipients, recipient)
}

func newApplicationService(repo *mockApplicationRepo, recs *mockRecommendationLister, users *mockUserRepo, audits *mockAuditRecorder, emails *mockStatusNotifier) *ApplicationService {
	svc := NewApplicationService(repo, recs, users, audits, emails, eligibility.Policy{}, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func applicantClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleApplicant}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

// eligibleApplication returns an application that clears every submit
// requirement except recommendations, which come from the lister.
func eligibleApplication(ownerID string) *models.Application {
	gpa := 3.6
	photo := "file-photo"
	transcript := "file-transcript"
	essay := "file-essay"
	return &models.Application{
		ID:                 "app-1",
		OwnerID:            ownerID,
		Status:             models.StatusInProgress,
		CurrentStep:        models.StepReview,
		CompletedSteps:     pq.Int64Array{1, 2, 3, 4, 5, 6, 7},
		FirstName:          "Rosa",
		LastName:           "Parks",
		Phone:              "555-0100",
		DateOfBirth:        "2006-02-04",
		Street:             "12 Main St",
		City:               "Detroit",
		State:              "MI",
		Zip:                "48201",
		HighSchoolName:     "Central High",
		HighSchoolCity:     "Detroit",
		GraduationDate:     "2024-06-01",
		GPA:                &gpa,
		CollegeName:        "Michigan State",
		CollegeCity:        "East Lansing",
		CollegeState:       "MI",
		YearInCollege:      "FRESHMAN",
		IsFullTimeStudent:  true,
		IsMichiganResident: true,
		ProfilePhotoFileID: &photo,
		TranscriptFileID:   &transcript,
		EssayFileID:        &essay,
		EssayWordCount:     400,
	}
}

func submittedRecommendations() []models.Recommendation {
	return []models.Recommendation{
		{ID: "rec-1", Status: models.RecommendationSubmitted, RecommenderType: models.RecommenderEducator},
		{ID: "rec-2", Status: models.RecommendationSubmitted, RecommenderType: models.RecommenderOther},
	}
}

func TestApplicationServiceCreateReturnsExistingDraft(t *testing.T) {
	repo := &mockApplicationRepo{}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	first, err := svc.Create(context.Background(), applicantClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, first.Status)
	assert.Equal(t, models.StepMin, first.CurrentStep)

	second, err := svc.Create(context.Background(), applicantClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.apps, 1)
}

func TestApplicationServiceGetEnforcesOwnership(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", Status: models.StatusDraft},
	}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Get(context.Background(), "app-1", applicantClaims("user-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "app-1", adminClaims())
	assert.NoError(t, err)
}

func TestApplicationServiceUpdateStepMovesDraftForward(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", Status: models.StatusDraft, CurrentStep: 1},
	}}
	audits := &mockAuditRecorder{}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, audits, &mockStatusNotifier{})

	payload, _ := json.Marshal(PersonalStepRequest{FirstName: "Rosa", LastName: "Parks", Phone: "555-0100", DateOfBirth: "2006-02-04"})
	result, err := svc.UpdateStep(context.Background(), "app-1", models.StepPersonal, payload, applicantClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, result.Application.Status)
	assert.True(t, result.Application.HasCompletedStep(models.StepPersonal))
	assert.Equal(t, "Rosa", result.Application.FirstName)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionApplicationStepUpdated, audits.logs[0].Action)
}

func TestApplicationServiceUpdateStepSurfacesDisqualifiers(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", Status: models.StatusInProgress},
	}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	gpa := 2.4
	payload, _ := json.Marshal(EducationStepRequest{
		HighSchoolName: "Central High", HighSchoolCity: "Detroit", GraduationDate: "2024-06-01",
		GPA: &gpa, CollegeName: "MSU", CollegeCity: "East Lansing", CollegeState: "MI", YearInCollege: "FRESHMAN",
	})
	result, err := svc.UpdateStep(context.Background(), "app-1", models.StepEducation, payload, applicantClaims("user-1"))
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Disqualifiers))
	for _, req := range result.Disqualifiers {
		ids = append(ids, req.ID)
	}
	assert.Contains(t, ids, eligibility.ReqGPA)
}

func TestApplicationServiceUpdateStepRejectsUnknownYearInCollege(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", Status: models.StatusInProgress},
	}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	gpa := 3.5
	payload, _ := json.Marshal(EducationStepRequest{
		HighSchoolName: "Central High", HighSchoolCity: "Detroit", GraduationDate: "2024-06-01",
		GPA: &gpa, CollegeName: "MSU", CollegeCity: "East Lansing", CollegeState: "MI", YearInCollege: "POSTDOC",
	})
	_, err := svc.UpdateStep(context.Background(), "app-1", models.StepEducation, payload, applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceMarkStepCompleteIsIdempotent(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", Status: models.StatusInProgress, CompletedSteps: pq.Int64Array{1}},
	}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	app, err := svc.MarkStepComplete(context.Background(), "app-1", 1, applicantClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, pq.Int64Array{1}, app.CompletedSteps)
	assert.Zero(t, repo.updateCalls)

	app, err = svc.MarkStepComplete(context.Background(), "app-1", 2, applicantClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, pq.Int64Array{1, 2}, app.CompletedSteps)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestApplicationServiceSubmitRejectsSignatureMismatch(t *testing.T) {
	app := eligibleApplication("user-1")
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{recs: submittedRecommendations()}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Someone Else"}, applicantClaims("user-1"))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, map[string]interface{}{"unmet": []string{"signature"}}, appErr.Details)
}

func TestApplicationServiceSubmitAcceptsCaseInsensitiveSignature(t *testing.T) {
	app := eligibleApplication("user-1")
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	audits := &mockAuditRecorder{}
	svc := newApplicationService(repo, &mockRecommendationLister{recs: submittedRecommendations()}, &mockUserRepo{}, audits, &mockStatusNotifier{})

	submitted, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "  rosa PARKS "}, applicantClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.Signature)
	assert.Equal(t, "rosa PARKS", *submitted.Signature)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionApplicationSubmitted, audits.logs[0].Action)
}

func TestApplicationServiceSubmitReportsUnmetRequirements(t *testing.T) {
	app := eligibleApplication("user-1")
	app.EssayWordCount = 120
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Rosa Parks"}, applicantClaims("user-1"))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	unmet, ok := details["unmet"].([]string)
	require.True(t, ok)
	assert.Contains(t, unmet, eligibility.ReqEssay)
	assert.Contains(t, unmet, eligibility.ReqRecommendations)
}

func TestApplicationServiceSubmitReportsSignatureWithOtherUnmet(t *testing.T) {
	app := eligibleApplication("user-1")
	app.GPA = nil
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{recs: submittedRecommendations()}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Someone Else"}, applicantClaims("user-1"))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	unmet, ok := details["unmet"].([]string)
	require.True(t, ok)
	assert.Contains(t, unmet, eligibility.ReqGPA)
	assert.Contains(t, unmet, "signature")
}

func TestApplicationServiceSubmitRetryReturnsAlreadySubmitted(t *testing.T) {
	app := eligibleApplication("user-1")
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{recs: submittedRecommendations()}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	first, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Rosa Parks"}, applicantClaims("user-1"))
	require.NoError(t, err)
	firstAt := *first.SubmittedAt

	_, err = svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Rosa Parks"}, applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadySubmitted.Code, appErrors.FromError(err).Code)
	assert.Equal(t, firstAt, *repo.apps[app.ID].SubmittedAt)
}

func TestApplicationServiceSubmitLosingRaceReturnsAlreadySubmitted(t *testing.T) {
	app := eligibleApplication("user-1")
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}, submitDeny: true}
	svc := newApplicationService(repo, &mockRecommendationLister{recs: submittedRecommendations()}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Submit(context.Background(), app.ID, SubmitApplicationRequest{Signature: "Rosa Parks"}, applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadySubmitted.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceWithdrawFromSubmitted(t *testing.T) {
	app := eligibleApplication("user-1")
	app.Status = models.StatusSubmitted
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	audits := &mockAuditRecorder{}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, audits, &mockStatusNotifier{})

	reason := "enrolled elsewhere"
	withdrawn, err := svc.Withdraw(context.Background(), app.ID, WithdrawApplicationRequest{Reason: &reason}, applicantClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.WithdrawnAt)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionApplicationWithdrawn, audits.logs[0].Action)
}

func TestApplicationServiceWithdrawAfterDecisionRejected(t *testing.T) {
	app := eligibleApplication("user-1")
	app.Status = models.StatusSelected
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.Withdraw(context.Background(), app.ID, WithdrawApplicationRequest{}, applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSetStatusEnforcesTransitionTable(t *testing.T) {
	app := eligibleApplication("user-1")
	app.Status = models.StatusSubmitted
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	users := &mockUserRepo{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "rosa@example.com", FullName: "Rosa Parks"},
	}}
	emails := &mockStatusNotifier{}
	svc := newApplicationService(repo, &mockRecommendationLister{}, users, &mockAuditRecorder{}, emails)

	_, err := svc.SetStatus(context.Background(), app.ID, SetStatusRequest{Status: models.StatusFinalist}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	moved, err := svc.SetStatus(context.Background(), app.ID, SetStatusRequest{Status: models.StatusUnderReview}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, moved.Status)
	require.Len(t, emails.kinds, 1)
	assert.Equal(t, EmailKindApplicationStatus, emails.kinds[0])
	assert.Equal(t, "rosa@example.com", emails.recipients[0])
}

func TestApplicationServiceSetStatusRejectsUnknownStatus(t *testing.T) {
	app := eligibleApplication("user-1")
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	_, err := svc.SetStatus(context.Background(), app.ID, SetStatusRequest{Status: "APPROVED"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceWriteLockedAfterSubmission(t *testing.T) {
	app := eligibleApplication("user-1")
	at := time.Now()
	app.Status = models.StatusSubmitted
	app.SubmittedAt = &at
	repo := &mockApplicationRepo{apps: map[string]*models.Application{app.ID: app}}
	svc := newApplicationService(repo, &mockRecommendationLister{}, &mockUserRepo{}, &mockAuditRecorder{}, &mockStatusNotifier{})

	payload, _ := json.Marshal(PersonalStepRequest{FirstName: "New", LastName: "Name", Phone: "555", DateOfBirth: "2000-01-01"})
	_, err := svc.UpdateStep(context.Background(), app.ID, models.StepPersonal, payload, applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadySubmitted.Code, appErrors.FromError(err).Code)

	// Admins may still correct data after submission.
	_, err = svc.UpdateStep(context.Background(), app.ID, models.StepPersonal, payload, adminClaims())
	assert.NoError(t, err)
}
