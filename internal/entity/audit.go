package entity

import "time"

// Audit actions and severities, matching the admin console vocabulary.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"

	AuditSeverityLow      = "low"
	AuditSeverityMedium   = "medium"
	AuditSeverityHigh     = "high"
	AuditSeverityCritical = "critical"

	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// AuditLog is an immutable record of a state-changing action. Rows are
// written once inside the same transaction as the change they describe
// and expire after the configured retention window.
type AuditLog struct {
	ID          int64          `json:"id"`
	ActorID     int64          `json:"actor_id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    int64          `json:"entity_id"`
	EntityName  string         `json:"entity_name"`
	Description string         `json:"description"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Status      string         `json:"status"`
	Severity    string         `json:"severity"`
	CreatedAt   time.Time      `json:"created_at"`
}
