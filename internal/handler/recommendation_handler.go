package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// RecommendationHandler exposes recommender invitation management plus the
// public tokenized endpoints recommenders use without an account.
type RecommendationHandler struct {
	recommendations *service.RecommendationService
}

// NewRecommendationHandler constructs RecommendationHandler.
func NewRecommendationHandler(recommendations *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations}
}

// Invite godoc
// @Summary Invite a recommender
// @Tags Recommendations
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.InviteRecommenderRequest true "Recommender payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/recommendations [post]
func (h *RecommendationHandler) Invite(c *gin.Context) {
	var req service.InviteRecommenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rec, err := h.recommendations.Invite(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// ListByApplication godoc
// @Summary List an application's recommendations
// @Tags Recommendations
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/recommendations [get]
func (h *RecommendationHandler) ListByApplication(c *gin.Context) {
	recs, err := h.recommendations.ListByApplication(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, nil)
}

// Resend godoc
// @Summary Resend the invitation with a fresh token
// @Tags Recommendations
// @Produce json
// @Param id path string true "Recommendation ID"
// @Success 200 {object} response.Envelope
// @Router /recommendations/{id}/resend [post]
func (h *RecommendationHandler) Resend(c *gin.Context) {
	rec, err := h.recommendations.Resend(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Remind godoc
// @Summary Send a reminder email to the recommender
// @Tags Recommendations
// @Produce json
// @Param id path string true "Recommendation ID"
// @Success 200 {object} response.Envelope
// @Router /recommendations/{id}/remind [post]
func (h *RecommendationHandler) Remind(c *gin.Context) {
	rec, err := h.recommendations.SendReminder(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Cancel godoc
// @Summary Cancel a pending recommendation request
// @Tags Recommendations
// @Produce json
// @Param id path string true "Recommendation ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /recommendations/{id}/cancel [post]
func (h *RecommendationHandler) Cancel(c *gin.Context) {
	rec, err := h.recommendations.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// View godoc
// @Summary Open a recommendation via its access token
// @Tags Recommendations
// @Produce json
// @Param token path string true "Access token"
// @Success 200 {object} response.Envelope
// @Router /recommend/{token} [get]
func (h *RecommendationHandler) View(c *gin.Context) {
	rec, err := h.recommendations.MarkViewed(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// SubmitLetter godoc
// @Summary Submit a recommendation letter via its access token
// @Tags Recommendations
// @Accept json
// @Produce json
// @Param token path string true "Access token"
// @Param payload body service.SubmitLetterRequest true "Letter payload"
// @Success 200 {object} response.Envelope
// @Router /recommend/{token} [post]
func (h *RecommendationHandler) SubmitLetter(c *gin.Context) {
	var req service.SubmitLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rec, err := h.recommendations.SubmitLetter(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}
