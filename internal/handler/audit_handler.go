package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditHandler exposes the admin audit trail.
type AuditHandler struct {
	audits auditLister
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audits auditLister) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Param userId query string false "Filter by user"
// @Param applicationId query string false "Filter by application"
// @Param action query string false "Filter by action"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	filter.UserID = strings.TrimSpace(c.Query("userId"))
	filter.ApplicationID = strings.TrimSpace(c.Query("applicationId"))
	filter.Action = strings.TrimSpace(c.Query("action"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	logs, total, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	response.JSON(c, http.StatusOK, logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total})
}
