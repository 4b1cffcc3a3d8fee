package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// EvaluationHandler exposes committee evaluation endpoints.
type EvaluationHandler struct {
	evaluations *service.EvaluationService
}

// NewEvaluationHandler constructs EvaluationHandler.
func NewEvaluationHandler(evaluations *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations}
}

// Submit godoc
// @Summary Rate an application
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.SubmitEvaluationRequest true "Rating payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/evaluations [put]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	var req service.SubmitEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	eval, err := h.evaluations.Submit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eval, nil)
}

// Mine godoc
// @Summary Get the caller's rating of an application
// @Tags Evaluations
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/evaluations/mine [get]
func (h *EvaluationHandler) Mine(c *gin.Context) {
	eval, err := h.evaluations.Mine(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eval, nil)
}

// ListByApplication godoc
// @Summary List an application's evaluations
// @Tags Evaluations
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/evaluations [get]
func (h *EvaluationHandler) ListByApplication(c *gin.Context) {
	evals, err := h.evaluations.ListByApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evals, nil)
}

// Rankings godoc
// @Summary Committee ranking board
// @Tags Evaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /evaluations/rankings [get]
func (h *EvaluationHandler) Rankings(c *gin.Context) {
	rankings, err := h.evaluations.Rankings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rankings, nil)
}

// Progress godoc
// @Summary Committee-wide evaluation progress
// @Tags Evaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /evaluations/progress [get]
func (h *EvaluationHandler) Progress(c *gin.Context) {
	progress, err := h.evaluations.Progress(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// MyStats godoc
// @Summary The caller's evaluation progress
// @Tags Evaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /evaluations/stats [get]
func (h *EvaluationHandler) MyStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.evaluations.EvaluatorStats(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
