package models

import (
	"encoding/json"
	"time"
)

// ContentEntry stores one top-level content fragment of the site document.
// The value is replaced wholesale on every write; callers read-modify-write.
type ContentEntry struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
	UpdatedBy *string         `db:"updated_by" json:"updated_by,omitempty"`
}

// UpsertContentRequest replaces the full value stored under a key. When
// ExpectedVersion is set the write only succeeds if it still matches the
// latest stored version number.
type UpsertContentRequest struct {
	Key             string          `json:"key" validate:"required"`
	Value           json.RawMessage `json:"value" validate:"required"`
	Description     string          `json:"description"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

// BulkUpsertContentRequest replaces several keys at once without versioning.
type BulkUpsertContentRequest struct {
	Entries map[string]json.RawMessage `json:"entries" validate:"required,min=1"`
}

// UpdateContentAtPathRequest assigns a value at a nested path inside the
// stored document for a key.
type UpdateContentAtPathRequest struct {
	Key         string      `json:"key" validate:"required"`
	Path        []string    `json:"path" validate:"required,min=1"`
	Value       interface{} `json:"value"`
	Description string      `json:"description"`
}

// ContentVersion is an immutable snapshot of the value a write replaced.
// Versions start at 1 and increase strictly per content key.
type ContentVersion struct {
	ID                string          `db:"id" json:"id"`
	ContentKey        string          `db:"content_key" json:"content_key"`
	Value             json.RawMessage `db:"value" json:"value"`
	Version           int             `db:"version" json:"version"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	CreatedBy         *string         `db:"created_by" json:"created_by,omitempty"`
	ChangeDescription string          `db:"change_description" json:"change_description"`
}
