package cache

import (
	"database/sql"
	"fmt"

	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// UpsertAttachmentMeta records one attachment's metadata row; the blob
// itself lives on disk under internal/attachments' storage layout, this
// table only tracks where it landed (§4.4).
func (s *Store) UpsertAttachmentMeta(a *models.Attachment) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("att", 16)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO attachments (id, message_id, account_email, filename, content_type, content_id, size, is_inline, storage_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.MessageID, a.AccountEmail, a.Filename, a.ContentType, a.ContentID, a.Size, a.IsInline, a.StoragePath, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("cache: upsert attachment meta: %w", err)
	}
	return nil
}

func (s *Store) ListAttachments(accountEmail, messageID string) ([]*models.Attachment, error) {
	rows, err := s.db.Query(`
		SELECT id, message_id, account_email, filename, content_type, content_id, size, is_inline, storage_path, created_at
		FROM attachments WHERE account_email = ? AND message_id = ?
		ORDER BY created_at
	`, accountEmail, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAttachment(accountEmail, id string) (*models.Attachment, error) {
	row := s.db.QueryRow(`
		SELECT id, message_id, account_email, filename, content_type, content_id, size, is_inline, storage_path, created_at
		FROM attachments WHERE account_email = ? AND id = ?
	`, accountEmail, id)
	a, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// DeleteAttachmentsByMessage removes every attachment row for a message,
// called after the Attachment Store has deleted the underlying files.
func (s *Store) DeleteAttachmentsByMessage(accountEmail, messageID string) error {
	_, err := s.db.Exec(`DELETE FROM attachments WHERE account_email = ? AND message_id = ?`, accountEmail, messageID)
	return err
}

func scanAttachment(r scannable) (*models.Attachment, error) {
	var a models.Attachment
	if err := r.Scan(&a.ID, &a.MessageID, &a.AccountEmail, &a.Filename, &a.ContentType, &a.ContentID, &a.Size, &a.IsInline, &a.StoragePath, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
