package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin                   = "LOGIN"
	AuditActionLogout                  = "LOGOUT"
	AuditActionPasswordChange          = "PASSWORD_CHANGE"
	AuditActionApplicationCreated      = "application:created"
	AuditActionApplicationStepUpdated  = "application:step_updated"
	AuditActionApplicationSubmitted    = "application:submitted"
	AuditActionApplicationWithdrawn    = "application:withdrawn"
	AuditActionApplicationStatusMoved  = "application:status_changed"
	AuditActionRecommendationInvited   = "recommendation:invited"
	AuditActionRecommendationViewed    = "recommendation:viewed"
	AuditActionRecommendationSubmitted = "recommendation:submitted"
	AuditActionRecommendationResent    = "recommendation:resent"
	AuditActionRecommendationReminded  = "recommendation:reminder_sent"
	AuditActionRecommendationCancelled = "recommendation:cancelled"
	AuditActionEvaluationSubmitted     = "evaluation:submitted"
	AuditActionReportRequested         = "report:requested"
	AuditActionUserCreate              = "user:created"
	AuditActionUserUpdate              = "user:updated"
	AuditActionUserDelete              = "user:deleted"
)

// AuditLog represents one append-only audit trail record. Rows are never
// updated or deleted.
type AuditLog struct {
	ID            string    `db:"id" json:"id"`
	UserID        *string   `db:"user_id" json:"user_id,omitempty"`
	ApplicationID *string   `db:"application_id" json:"application_id,omitempty"`
	Action        string    `db:"action" json:"action"`
	Resource      string    `db:"resource" json:"resource"`
	ResourceID    *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail        []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit listing queries for the admin console.
type AuditFilter struct {
	UserID        string
	ApplicationID string
	Action        string
	Page          int
	PageSize      int
}
