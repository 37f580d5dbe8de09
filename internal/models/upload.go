package models

import "time"

// Upload tracks one stored media file.
type Upload struct {
	ID           string    `db:"id" json:"id"`
	Filename     string    `db:"filename" json:"file_name"`
	OriginalName string    `db:"original_name" json:"original_name"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Size         int64     `db:"size" json:"size"`
	Path         string    `db:"path" json:"-"`
	UploadedBy   *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UploadResult is returned to clients after a successful upload.
type UploadResult struct {
	URL          string `json:"url"`
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
}
