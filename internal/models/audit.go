package models

import (
	"encoding/json"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin             = "login"
	AuditActionLogout            = "logout"
	AuditActionContentUpdate     = "content_update"
	AuditActionContentBulkUpdate = "content_bulk_update"
	AuditActionUserCreate        = "user_create"
	AuditActionUserUpdate        = "user_update"
	AuditActionUserDelete        = "user_delete"
	AuditActionUploadCreate      = "upload_create"
	AuditActionUploadDelete      = "upload_delete"
)

// AuditLog represents an append-only audit trail record. User attribution is a
// weak reference: deleting a user leaves the stored id and email untouched.
type AuditLog struct {
	ID        string          `db:"id" json:"id"`
	UserID    *string         `db:"user_id" json:"user_id,omitempty"`
	UserEmail string          `db:"user_email" json:"user_email"`
	Action    string          `db:"action" json:"action"`
	Resource  string          `db:"resource" json:"resource"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress string          `db:"ip_address" json:"ip_address"`
	UserAgent string          `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
