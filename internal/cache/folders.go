package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// UpsertFolder inserts or updates a folder scoped to one account, keyed on
// (account_email, name) per §3's uniqueness rule.
func (s *Store) UpsertFolder(f *models.Folder) error {
	attrs, err := json.Marshal(f.Attributes)
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = utils.GenerateNanoIDWithPrefix("fldr", 16)
	}
	now := utils.Now()
	f.UpdatedAt = now
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}

	_, err = s.db.Exec(`
		INSERT INTO folders (id, account_email, name, delimiter, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_email, name) DO UPDATE SET
			delimiter  = excluded.delimiter,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, f.ID, f.AccountEmail, f.Name, f.Delimiter, string(attrs), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cache: upsert folder: %w", err)
	}
	return nil
}

// GetFolder looks up a folder by account + name; every caller MUST pass
// the account so cross-account rows can never leak (§4.3 invariant).
func (s *Store) GetFolder(accountEmail, name string) (*models.Folder, error) {
	row := s.db.QueryRow(`
		SELECT id, account_email, name, delimiter, attributes, created_at, updated_at
		FROM folders WHERE account_email = ? AND name = ?
	`, accountEmail, name)
	return scanFolder(row)
}

func (s *Store) GetFolderByID(accountEmail, folderID string) (*models.Folder, error) {
	row := s.db.QueryRow(`
		SELECT id, account_email, name, delimiter, attributes, created_at, updated_at
		FROM folders WHERE account_email = ? AND id = ?
	`, accountEmail, folderID)
	return scanFolder(row)
}

func (s *Store) ListFolders(accountEmail string) ([]*models.Folder, error) {
	rows, err := s.db.Query(`
		SELECT id, account_email, name, delimiter, attributes, created_at, updated_at
		FROM folders WHERE account_email = ? ORDER BY name
	`, accountEmail)
	if err != nil {
		return nil, fmt.Errorf("cache: list folders: %w", err)
	}
	defer rows.Close()

	var out []*models.Folder
	for rows.Next() {
		f, err := scanFolderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFolder(accountEmail, name string) error {
	f, err := s.GetFolder(accountEmail, name)
	if err != nil {
		return err
	}
	if f == nil {
		return apierr.NotFound("folder", name)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM emails WHERE folder_id = ?`, f.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sync_state WHERE folder_id = ?`, f.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM folders WHERE id = ?`, f.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RenameFolder(accountEmail, oldName, newName string) error {
	res, err := s.db.Exec(`UPDATE folders SET name = ?, updated_at = ? WHERE account_email = ? AND name = ?`,
		newName, utils.Now(), accountEmail, oldName)
	if err != nil {
		return fmt.Errorf("cache: rename folder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("folder", oldName)
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanFolder(row *sql.Row) (*models.Folder, error) {
	f, err := scanFolderRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func scanFolderRows(r scannable) (*models.Folder, error) {
	var f models.Folder
	var attrs string
	if err := r.Scan(&f.ID, &f.AccountEmail, &f.Name, &f.Delimiter, &attrs, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(attrs), &f.Attributes)
	return &f, nil
}
