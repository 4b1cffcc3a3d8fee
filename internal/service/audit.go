package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// recordAudit appends an audit entry for a state-changing action. Failures
// are logged and swallowed: losing an audit row must never block the
// operation that triggered it.
func recordAudit(ctx context.Context, audits auditRecorder, logger *zap.Logger, actor *models.JWTClaims, applicationID *string, action, resource string, resourceID *string, detail map[string]interface{}) {
	if audits == nil {
		return
	}
	var userID *string
	if actor != nil {
		id := actor.UserID
		userID = &id
	}
	var payload []byte
	if detail != nil {
		payload, _ = json.Marshal(detail)
	}
	if err := audits.Create(ctx, &models.AuditLog{
		UserID:        userID,
		ApplicationID: applicationID,
		Action:        action,
		Resource:      resource,
		ResourceID:    resourceID,
		Detail:        payload,
	}); err != nil && logger != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
