package models

import (
	"time"

	"github.com/customeros/mailstack/internal/enum"
)

// SyncCursor is the resume point for incremental sync of one folder: the
// last UID known to be synced under the UIDVALIDITY it was observed with.
// LastUIDSynced only increases within one UIDVALIDITY epoch; a UIDVALIDITY
// change is a discontinuity that resets the cursor to 0 (see the sync
// engine for the drop-and-reset handling).
type SyncCursor struct {
	FolderID        string         `json:"folderId"`
	LastUIDSynced   uint32         `json:"lastUidSynced"`
	UIDValidity     uint32         `json:"uidValidity"`
	Status          enum.SyncStatus `json:"status"`
	LastError       string         `json:"lastError,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
