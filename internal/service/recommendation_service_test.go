package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/pkg/config"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type mockRecommendationRepo struct {
	recs      map[string]*models.Recommendation
	liveCount int
	maxLive   int
	seq       int
}

func (m *mockRecommendationRepo) store(rec *models.Recommendation) {
	if m.recs == nil {
		m.recs = make(map[string]*models.Recommendation)
	}
	copy := *rec
	m.recs[rec.ID] = &copy
}

func (m *mockRecommendationRepo) CreateWithQuota(ctx context.Context, rec *models.Recommendation, maxLive int) error {
	if m.liveCount >= maxLive {
		return repository.ErrRecommendationQuota
	}
	m.seq++
	rec.ID = fmt.Sprintf("rec-%d", m.seq)
	m.liveCount++
	m.store(rec)
	return nil
}

func (m *mockRecommendationRepo) FindByID(ctx context.Context, id string) (*models.Recommendation, error) {
	if rec, ok := m.recs[id]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRecommendationRepo) FindByToken(ctx context.Context, tok string) (*models.Recommendation, error) {
	for _, rec := range m.recs {
		if rec.AccessToken == tok {
			copy := *rec
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRecommendationRepo) ListByApplication(ctx context.Context, applicationID string) ([]models.Recommendation, error) {
	var out []models.Recommendation
	for _, rec := range m.recs {
		if rec.ApplicationID == applicationID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockRecommendationRepo) MarkViewed(ctx context.Context, id string, at time.Time) (bool, error) {
	rec, ok := m.recs[id]
	if !ok || rec.Status != models.RecommendationEmailSent {
		return false, nil
	}
	when := at
	rec.Status = models.RecommendationViewed
	rec.ViewedAt = &when
	return true, nil
}

func (m *mockRecommendationRepo) SubmitLetter(ctx context.Context, rec *models.Recommendation, at time.Time) (bool, error) {
	stored, ok := m.recs[rec.ID]
	if !ok || stored.Status == models.RecommendationSubmitted {
		return false, nil
	}
	when := at
	stored.Status = models.RecommendationSubmitted
	stored.SubmittedAt = &when
	stored.LetterFileID = rec.LetterFileID
	stored.LetterText = rec.LetterText
	stored.RecommenderName = rec.RecommenderName
	return true, nil
}

func (m *mockRecommendationRepo) ResetToken(ctx context.Context, id, tok string, expiresAt time.Time) (bool, error) {
	rec, ok := m.recs[id]
	if !ok || rec.Status == models.RecommendationSubmitted {
		return false, nil
	}
	rec.AccessToken = tok
	rec.TokenExpiresAt = expiresAt
	rec.Status = models.RecommendationEmailSent
	rec.ResendCount++
	return true, nil
}

func (m *mockRecommendationRepo) Withdraw(ctx context.Context, id string, at time.Time) (bool, error) {
	rec, ok := m.recs[id]
	if !ok || rec.Status == models.RecommendationSubmitted || rec.Withdrawn {
		return false, nil
	}
	rec.Withdrawn = true
	m.liveCount--
	return true, nil
}

func (m *mockRecommendationRepo) RecordReminder(ctx context.Context, id string, at time.Time) error {
	rec, ok := m.recs[id]
	if !ok {
		return sql.ErrNoRows
	}
	when := at
	rec.EmailRemindersSent++
	rec.LastReminderAt = &when
	return nil
}

var recommendationTestNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newRecommendationServiceForTest(repo *mockRecommendationRepo, apps *mockApplicationRepo) (*RecommendationService, *mockAuditRecorder) {
	audits := &mockAuditRecorder{}
	svc := NewRecommendationService(repo, apps, audits, nil, config.RecommendationsConfig{
		MaxLive:          2,
		TokenTTL:         30 * 24 * time.Hour,
		ReminderCooldown: 24 * time.Hour,
	}, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return recommendationTestNow }
	seq := 0
	svc.generate = func() (string, error) {
		seq++
		return fmt.Sprintf("token-%d", seq), nil
	}
	return svc, audits
}

func inviteRequest() InviteRecommenderRequest {
	return InviteRecommenderRequest{
		RecommenderName:  "Dr. Alvarez",
		RecommenderEmail: "alvarez@example.edu",
		RecommenderType:  models.RecommenderEducator,
	}
}

func TestRecommendationServiceInviteIssuesToken(t *testing.T) {
	repo := &mockRecommendationRepo{}
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", FirstName: "Rosa", LastName: "Parks"},
	}}
	svc, audits := newRecommendationServiceForTest(repo, apps)

	rec, err := svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, models.RecommendationEmailSent, rec.Status)
	assert.Equal(t, "token-1", rec.AccessToken)
	assert.Equal(t, recommendationTestNow.Add(30*24*time.Hour), rec.TokenExpiresAt)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionRecommendationInvited, audits.logs[0].Action)
}

func TestRecommendationServiceInviteEnforcesQuota(t *testing.T) {
	repo := &mockRecommendationRepo{liveCount: 2}
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceInviteRejectsNonOwner(t *testing.T) {
	repo := &mockRecommendationRepo{}
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceMarkViewedMovesOnce(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:             "rec-1",
		ApplicationID:  "app-1",
		Status:         models.RecommendationEmailSent,
		AccessToken:    "token-1",
		TokenExpiresAt: recommendationTestNow.Add(time.Hour),
	})
	svc, audits := newRecommendationServiceForTest(repo, &mockApplicationRepo{})

	first, err := svc.MarkViewed(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationViewed, first.Status)
	require.NotNil(t, first.ViewedAt)

	second, err := svc.MarkViewed(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationViewed, second.Status)
	assert.Len(t, audits.logs, 1)
}

func TestRecommendationServiceTokenResolution(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:             "rec-1",
		ApplicationID:  "app-1",
		Status:         models.RecommendationEmailSent,
		AccessToken:    "expired-token",
		TokenExpiresAt: recommendationTestNow.Add(-time.Minute),
	})
	svc, _ := newRecommendationServiceForTest(repo, &mockApplicationRepo{})

	_, err := svc.MarkViewed(context.Background(), "no-such-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)

	_, err = svc.MarkViewed(context.Background(), "expired-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceSubmitLetterRequiresContent(t *testing.T) {
	svc, _ := newRecommendationServiceForTest(&mockRecommendationRepo{}, &mockApplicationRepo{})

	_, err := svc.SubmitLetter(context.Background(), "token-1", SubmitLetterRequest{RecommenderName: "Dr. Alvarez"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceSubmitLetterIsFinal(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:             "rec-1",
		ApplicationID:  "app-1",
		Status:         models.RecommendationViewed,
		AccessToken:    "token-1",
		TokenExpiresAt: recommendationTestNow.Add(time.Hour),
	})
	svc, audits := newRecommendationServiceForTest(repo, &mockApplicationRepo{})

	text := "An outstanding student."
	rec, err := svc.SubmitLetter(context.Background(), "token-1", SubmitLetterRequest{
		LetterText:      &text,
		RecommenderName: "Dr. Alvarez",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationSubmitted, rec.Status)
	require.NotNil(t, rec.SubmittedAt)
	require.Len(t, audits.logs, 1)

	_, err = svc.SubmitLetter(context.Background(), "token-1", SubmitLetterRequest{
		LetterText:      &text,
		RecommenderName: "Dr. Alvarez",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadySubmitted.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceResendRotatesToken(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:             "rec-1",
		ApplicationID:  "app-1",
		Status:         models.RecommendationViewed,
		AccessToken:    "old-token",
		TokenExpiresAt: recommendationTestNow.Add(time.Hour),
	})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", FirstName: "Rosa", LastName: "Parks"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	rec, err := svc.Resend(context.Background(), "rec-1", applicantClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, "token-1", rec.AccessToken)
	assert.Equal(t, models.RecommendationEmailSent, rec.Status)
	assert.Equal(t, 1, rec.ResendCount)

	// Old link no longer resolves.
	_, err = svc.MarkViewed(context.Background(), "old-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceResendRejectsSubmitted(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:            "rec-1",
		ApplicationID: "app-1",
		Status:        models.RecommendationSubmitted,
	})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.Resend(context.Background(), "rec-1", applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceCancelFreesQuotaSlot(t *testing.T) {
	repo := &mockRecommendationRepo{}
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1", FirstName: "Rosa", LastName: "Parks"},
	}}
	svc, audits := newRecommendationServiceForTest(repo, apps)

	first, err := svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.NoError(t, err)
	_, err = svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.NoError(t, err)

	// Both slots taken; the next invite must fail until one is freed.
	_, err = svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)

	cancelled, err := svc.Cancel(context.Background(), first.ID, applicantClaims("user-1"))
	require.NoError(t, err)
	assert.True(t, cancelled.Withdrawn)
	assert.True(t, repo.recs[first.ID].Withdrawn)

	replacement, err := svc.Invite(context.Background(), "app-1", inviteRequest(), applicantClaims("user-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, replacement.ID)

	last := audits.logs[len(audits.logs)-2]
	assert.Equal(t, models.AuditActionRecommendationCancelled, last.Action)
}

func TestRecommendationServiceCancelRejectsSubmitted(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:            "rec-1",
		ApplicationID: "app-1",
		Status:        models.RecommendationSubmitted,
	})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.Cancel(context.Background(), "rec-1", applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceCancelIsNotRepeatable(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:            "rec-1",
		ApplicationID: "app-1",
		Status:        models.RecommendationEmailSent,
		Withdrawn:     true,
	})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.Cancel(context.Background(), "rec-1", applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceReminderCooldown(t *testing.T) {
	lastReminder := recommendationTestNow.Add(-2 * time.Hour)
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{
		ID:             "rec-1",
		ApplicationID:  "app-1",
		Status:         models.RecommendationViewed,
		LastReminderAt: &lastReminder,
	})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.SendReminder(context.Background(), "rec-1", applicantClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	// Outside the cooldown the reminder goes out.
	stale := recommendationTestNow.Add(-25 * time.Hour)
	repo.recs["rec-1"].LastReminderAt = &stale
	rec, err := svc.SendReminder(context.Background(), "rec-1", applicantClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.EmailRemindersSent)
	assert.Equal(t, recommendationTestNow, *rec.LastReminderAt)
}

func TestRecommendationServiceListHidesOtherApplicants(t *testing.T) {
	repo := &mockRecommendationRepo{}
	repo.store(&models.Recommendation{ID: "rec-1", ApplicationID: "app-1"})
	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", OwnerID: "user-1"},
	}}
	svc, _ := newRecommendationServiceForTest(repo, apps)

	_, err := svc.ListByApplication(context.Background(), "app-1", applicantClaims("user-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	recs, err := svc.ListByApplication(context.Background(), "app-1", &models.JWTClaims{UserID: "c-1", Role: models.RoleCommittee})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
