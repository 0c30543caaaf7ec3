package models

import "time"

// Attachment is scoped to (account email, message id, filename). The blob
// lives on disk at attachments/<account>/<sanitized-message-id>/<filename>;
// this row is its metadata.
type Attachment struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"messageId"`
	AccountEmail string    `json:"accountEmail"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"contentType"`
	ContentID    string    `json:"contentId,omitempty"`
	Size         int       `json:"size"`
	IsInline     bool      `json:"isInline"`
	StoragePath  string    `json:"storagePath"`
	CreatedAt    time.Time `json:"createdAt"`
}
