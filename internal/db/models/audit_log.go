// audit_log.go defines the audit trail entry recorded for mutating admin and
// account actions.
package models

import "time"

// AuditLog records one authenticated mutating request.
type AuditLog struct {
	ID         string
	UserID     *string
	Action     string // e.g. "POST /api/v1/admin/loaders"
	Resource   string // route template, not the raw URL
	StatusCode int
	ClientIP   string
	UserAgent  string
	CreatedAt  time.Time
}
