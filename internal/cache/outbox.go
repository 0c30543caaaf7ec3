package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// EnqueueOutboxItem inserts a new pending send, the entry point for both
// the REST send endpoint and MCP's send_email tool. This row is what
// internal/outbox drains; its worker performs all three §4.6 stages,
// Stage A included, after claiming it.
func (s *Store) EnqueueOutboxItem(o *models.OutboxItem) error {
	if o.ID == "" {
		o.ID = utils.GenerateNanoIDWithPrefix("obx", 16)
	}
	now := utils.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = enum.OutboxStatusPending
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}

	to, _ := json.Marshal(o.ToAddresses)
	cc, _ := json.Marshal(o.CcAddresses)
	bcc, _ := json.Marshal(o.BccAddresses)

	_, err := s.db.Exec(`
		INSERT INTO outbox_queue (
			id, account_email, to_addresses, cc_addresses, bcc_addresses, subject,
			body_text, body_html, raw_mime, message_id, status, retry_count, max_retries,
			outbox_saved, smtp_sent, sent_folder_saved, last_error, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		o.ID, o.AccountEmail, string(to), string(cc), string(bcc), o.Subject,
		o.BodyText, o.BodyHTML, o.RawMIME, o.MessageID, string(o.Status), o.RetryCount, o.MaxRetries,
		o.OutboxSaved, o.SmtpSent, o.SentFolderSaved, o.LastError, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cache: enqueue outbox item: %w", err)
	}
	return nil
}

// ClaimNextPending atomically flips the oldest pending item to Sending and
// returns it, so two outbox workers (or a restart racing a live worker)
// can never both pick up the same send — the sole serialization point
// before the SMTP-sent checkpoint itself (§8 property 4).
func (s *Store) ClaimNextPending() (*models.OutboxItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(outboxSelect + `
		WHERE status = ? ORDER BY created_at LIMIT 1
	`, string(enum.OutboxStatusPending))
	item, err := scanOutboxItem(row)
	if err == sql.ErrNoRows || item == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE outbox_queue SET status = ?, updated_at = ? WHERE id = ?`,
		string(enum.OutboxStatusSending), utils.Now(), item.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	item.Status = enum.OutboxStatusSending
	return item, nil
}

// MarkOutboxSaved / MarkSmtpSent / MarkSentFolderSaved flip the three
// advisory/authoritative checkpoints independently, so a crash between
// stages can be diagnosed and resumed from the exact point of failure
// (§4.6, §8 property 4): smtp_sent is the ONLY checkpoint that gates
// whether a retry is allowed to resend over SMTP.
func (s *Store) MarkOutboxSaved(id string) error {
	_, err := s.db.Exec(`UPDATE outbox_queue SET outbox_saved = 1, updated_at = ? WHERE id = ?`, utils.Now(), id)
	return err
}

func (s *Store) MarkSmtpSent(id string) error {
	_, err := s.db.Exec(`UPDATE outbox_queue SET smtp_sent = 1, updated_at = ? WHERE id = ?`, utils.Now(), id)
	return err
}

func (s *Store) MarkSentFolderSaved(id string) error {
	_, err := s.db.Exec(`
		UPDATE outbox_queue SET sent_folder_saved = 1, status = ?, updated_at = ? WHERE id = ?
	`, string(enum.OutboxStatusComplete), utils.Now(), id)
	return err
}

// RetryOutboxItem reverts a Sending item back to Pending after a
// transient failure, bumping retry_count, or to Failed once max_retries
// is exhausted.
func (s *Store) RetryOutboxItem(id, lastErr string) error {
	var retryCount, maxRetries int
	var smtpSent bool
	if err := s.db.QueryRow(`SELECT retry_count, max_retries, smtp_sent FROM outbox_queue WHERE id = ?`, id).
		Scan(&retryCount, &maxRetries, &smtpSent); err != nil {
		return err
	}
	if smtpSent {
		// The SMTP send already succeeded; a later stage (Sent-folder
		// append) failing is advisory only and must never trigger a resend.
		return nil
	}
	retryCount++
	status := enum.OutboxStatusPending
	if retryCount >= maxRetries {
		status = enum.OutboxStatusFailed
	}
	_, err := s.db.Exec(`
		UPDATE outbox_queue SET status = ?, retry_count = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, string(status), retryCount, lastErr, utils.Now(), id)
	return err
}

func (s *Store) GetOutboxItem(id string) (*models.OutboxItem, error) {
	row := s.db.QueryRow(outboxSelect+` WHERE id = ?`, id)
	item, err := scanOutboxItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *Store) ListOutboxItems(accountEmail string, status enum.OutboxStatus) ([]*models.OutboxItem, error) {
	q := outboxSelect + ` WHERE account_email = ?`
	args := []interface{}{accountEmail}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.OutboxItem
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

const outboxSelect = `
SELECT id, account_email, to_addresses, cc_addresses, bcc_addresses, subject,
       body_text, body_html, raw_mime, message_id, status, retry_count, max_retries,
       outbox_saved, smtp_sent, sent_folder_saved, last_error, created_at, updated_at
FROM outbox_queue
`

func scanOutboxItem(r scannable) (*models.OutboxItem, error) {
	var o models.OutboxItem
	var to, cc, bcc, status string
	var rawMIME []byte
	if err := r.Scan(
		&o.ID, &o.AccountEmail, &to, &cc, &bcc, &o.Subject,
		&o.BodyText, &o.BodyHTML, &rawMIME, &o.MessageID, &status, &o.RetryCount, &o.MaxRetries,
		&o.OutboxSaved, &o.SmtpSent, &o.SentFolderSaved, &o.LastError, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = enum.OutboxStatus(status)
	o.RawMIME = rawMIME
	_ = json.Unmarshal([]byte(to), &o.ToAddresses)
	_ = json.Unmarshal([]byte(cc), &o.CcAddresses)
	_ = json.Unmarshal([]byte(bcc), &o.BccAddresses)
	return &o, nil
}
