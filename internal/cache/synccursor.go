package cache

import (
	"database/sql"
	"fmt"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// GetSyncCursor returns the cursor row for a folder, or nil if the folder
// has never been synced (sync_state has no row until the first run).
func (s *Store) GetSyncCursor(folderID string) (*models.SyncCursor, error) {
	row := s.db.QueryRow(`
		SELECT folder_id, last_uid_synced, uid_validity, status, last_error, updated_at
		FROM sync_state WHERE folder_id = ?
	`, folderID)
	return scanSyncCursor(row)
}

// InitSyncCursor creates the zeroed cursor row for a newly discovered
// folder, a no-op if one already exists.
func (s *Store) InitSyncCursor(folderID string, uidValidity uint32) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (folder_id, last_uid_synced, uid_validity, status, last_error, updated_at)
		VALUES (?, 0, ?, ?, '', ?)
		ON CONFLICT(folder_id) DO NOTHING
	`, folderID, uidValidity, enum.SyncStatusIdle, utils.Now())
	return err
}

// AdvanceCursor records progress to lastUID, monotonic within the
// caller-supplied uidValidity epoch (§8 property 3). If uidValidity
// differs from the stored value, the caller has already observed a
// UIDVALIDITY discontinuity and must call ResetCursor instead — Advance
// refuses to move the cursor across an epoch change so a stale sync loop
// can't silently corrupt state.
func (s *Store) AdvanceCursor(folderID string, uidValidity, lastUID uint32) error {
	res, err := s.db.Exec(`
		UPDATE sync_state SET last_uid_synced = ?, status = ?, last_error = '', updated_at = ?
		WHERE folder_id = ? AND uid_validity = ? AND last_uid_synced <= ?
	`, lastUID, enum.SyncStatusIdle, utils.Now(), folderID, uidValidity, lastUID)
	if err != nil {
		return fmt.Errorf("cache: advance cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cache: cursor for folder %s not at expected uidvalidity/position", folderID)
	}
	return nil
}

// ResetCursor drops last_uid_synced back to 0 and adopts the new
// uid_validity, per §4.5 step 2: a UIDVALIDITY discontinuity means every
// previously cached UID mapping for this folder is meaningless, so the
// sync engine must restart the folder from scratch under the new epoch.
func (s *Store) ResetCursor(folderID string, newUIDValidity uint32) error {
	_, err := s.db.Exec(`
		UPDATE sync_state SET last_uid_synced = 0, uid_validity = ?, status = ?, last_error = '', updated_at = ?
		WHERE folder_id = ?
	`, newUIDValidity, enum.SyncStatusIdle, utils.Now(), folderID)
	return err
}

func (s *Store) SetCursorStatus(folderID string, status enum.SyncStatus, lastErr string) error {
	_, err := s.db.Exec(`
		UPDATE sync_state SET status = ?, last_error = ?, updated_at = ? WHERE folder_id = ?
	`, string(status), lastErr, utils.Now(), folderID)
	return err
}

// ListCursors returns every cursor for an account, joined through folders
// so the sync engine can enumerate what to work on per account in one call.
func (s *Store) ListCursors(accountEmail string) ([]*models.SyncCursor, error) {
	rows, err := s.db.Query(`
		SELECT ss.folder_id, ss.last_uid_synced, ss.uid_validity, ss.status, ss.last_error, ss.updated_at
		FROM sync_state ss JOIN folders f ON ss.folder_id = f.id
		WHERE f.account_email = ?
	`, accountEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SyncCursor
	for rows.Next() {
		c, err := scanSyncCursorRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSyncCursor(row *sql.Row) (*models.SyncCursor, error) {
	c, err := scanSyncCursorRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanSyncCursorRow(r scannable) (*models.SyncCursor, error) {
	var c models.SyncCursor
	var status string
	if err := r.Scan(&c.FolderID, &c.LastUIDSynced, &c.UIDValidity, &status, &c.LastError, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = enum.SyncStatus(status)
	return &c, nil
}
