package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// UpsertMessage caches one fetched message, idempotent on (folder_id, uid)
// per §4.3/§8 property 2: caching the same message N times yields exactly
// one row equal to the last input. Every list/search op below joins
// through folders on account_email, so UpsertMessage itself only needs the
// folder id the caller already resolved for that account (§4.3).
func (s *Store) UpsertMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 16)
	}
	now := utils.Now()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	to, _ := json.Marshal(m.ToAddresses)
	cc, _ := json.Marshal(m.CcAddresses)
	bcc, _ := json.Marshal(m.BccAddresses)
	flags, _ := json.Marshal(m.Flags)
	headers, _ := json.Marshal(m.RawHeaders)
	bodyStruct, _ := json.Marshal(m.BodyStructure)

	_, err := s.db.Exec(`
		INSERT INTO emails (
			id, folder_id, uid, message_id, thread_id, in_reply_to,
			direction, status, subject, from_address, from_name, reply_to,
			to_addresses, cc_addresses, bcc_addresses, body_text, body_html,
			has_attachment, flags, size, raw_headers, body_structure, classification,
			internal_date, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(folder_id, uid) DO UPDATE SET
			message_id     = excluded.message_id,
			thread_id      = excluded.thread_id,
			in_reply_to    = excluded.in_reply_to,
			direction      = excluded.direction,
			status         = excluded.status,
			subject        = excluded.subject,
			from_address   = excluded.from_address,
			from_name      = excluded.from_name,
			reply_to       = excluded.reply_to,
			to_addresses   = excluded.to_addresses,
			cc_addresses   = excluded.cc_addresses,
			bcc_addresses  = excluded.bcc_addresses,
			body_text      = excluded.body_text,
			body_html      = excluded.body_html,
			has_attachment = excluded.has_attachment,
			flags          = excluded.flags,
			size           = excluded.size,
			raw_headers    = excluded.raw_headers,
			body_structure = excluded.body_structure,
			classification = excluded.classification,
			internal_date  = excluded.internal_date,
			updated_at     = excluded.updated_at
	`,
		m.ID, m.FolderID, m.UID, m.MessageID, m.ThreadID, m.InReplyTo,
		string(m.Direction), string(m.Status), m.Subject, m.FromAddress, m.FromName, m.ReplyTo,
		string(to), string(cc), string(bcc), m.BodyText, m.BodyHTML,
		m.HasAttachment, string(flags), m.Size, string(headers), string(bodyStruct), string(m.Classification),
		m.InternalDate, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cache: upsert message: %w", err)
	}
	return nil
}

// GetMessageByUID enforces account scoping by joining through folders: the
// folder named must belong to accountEmail or the lookup returns nil,
// never another tenant's row (§8 property 1).
func (s *Store) GetMessageByUID(accountEmail, folderID string, uid uint32) (*models.Message, error) {
	row := s.db.QueryRow(messageSelect+` WHERE e.folder_id = ? AND f.account_email = ? AND e.uid = ?`, folderID, accountEmail, uid)
	return scanMessage(row)
}

func (s *Store) GetMessageByID(accountEmail, id string) (*models.Message, error) {
	row := s.db.QueryRow(messageSelect+` WHERE e.id = ? AND f.account_email = ?`, id, accountEmail)
	return scanMessage(row)
}

// ListMessages returns messages for one folder, newest first, paginated.
// preview truncates bodies to 200 chars per §4.3's preview mode.
func (s *Store) ListMessages(accountEmail, folderID string, limit, offset int, preview bool) ([]*models.Message, error) {
	rows, err := s.db.Query(messageSelect+`
		WHERE e.folder_id = ? AND f.account_email = ?
		ORDER BY e.internal_date DESC, e.uid DESC
		LIMIT ? OFFSET ?
	`, folderID, accountEmail, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("cache: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, preview)
}

// GetMessageByIndex fetches the Nth (0-based) message of a folder's
// newest-first ordering, for MCP's "get_email_by_index" tool.
func (s *Store) GetMessageByIndex(accountEmail, folderID string, index int) (*models.Message, error) {
	row := s.db.QueryRow(messageSelect+`
		WHERE e.folder_id = ? AND f.account_email = ?
		ORDER BY e.internal_date DESC, e.uid DESC
		LIMIT 1 OFFSET ?
	`, folderID, accountEmail, index)
	return scanMessage(row)
}

func (s *Store) CountMessages(accountEmail, folderID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM emails e JOIN folders f ON e.folder_id = f.id
		WHERE e.folder_id = ? AND f.account_email = ?
	`, folderID, accountEmail).Scan(&n)
	return n, err
}

// FolderStats reports message totals for one folder, used by the
// get_folder_stats MCP tool.
type FolderStats struct {
	Total         int
	Unread        int
	HasAttachment int
}

func (s *Store) GetFolderStats(accountEmail, folderID string) (*FolderStats, error) {
	var stats FolderStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN e.flags NOT LIKE '%\Seen%' THEN 1 ELSE 0 END),
			SUM(CASE WHEN e.has_attachment = 1 THEN 1 ELSE 0 END)
		FROM emails e JOIN folders f ON e.folder_id = f.id
		WHERE e.folder_id = ? AND f.account_email = ?
	`, folderID, accountEmail).Scan(&stats.Total, &stats.Unread, &stats.HasAttachment)
	if err != nil {
		return nil, fmt.Errorf("cache: folder stats: %w", err)
	}
	return &stats, nil
}

// SearchMessages does a case-insensitive substring match over
// subject/from/body, scoped to one account (optionally one folder) per the
// multi-tenant isolation invariant (§8 property 1).
func (s *Store) SearchMessages(accountEmail, folderID, query string, limit, offset int) ([]*models.Message, error) {
	like := "%" + strings.ToLower(query) + "%"
	q := messageSelect + `
		WHERE f.account_email = ?
		AND (
			LOWER(e.subject) LIKE ? OR LOWER(e.from_address) LIKE ? OR
			LOWER(e.from_name) LIKE ? OR LOWER(e.body_text) LIKE ?
		)`
	args := []interface{}{accountEmail, like, like, like, like}

	if folderID != "" {
		q += ` AND e.folder_id = ?`
		args = append(args, folderID)
	}
	q += ` ORDER BY e.internal_date DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, true)
}

// SearchBySubject supports the append/search/fetch end-to-end scenario and
// the move-verification scenario (§8): an exact substring match on subject.
func (s *Store) SearchBySubject(accountEmail, folderID, subject string) ([]*models.Message, error) {
	rows, err := s.db.Query(messageSelect+`
		WHERE f.account_email = ? AND e.folder_id = ? AND e.subject LIKE ?
		ORDER BY e.internal_date DESC
	`, accountEmail, folderID, "%"+subject+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows, false)
}

// SearchByDomain finds messages whose from/to address ends in @domain.
func (s *Store) SearchByDomain(accountEmail, domain string, limit, offset int) ([]*models.Message, error) {
	like := "%@" + strings.ToLower(domain)
	// to_addresses is a JSON array, so each address ends in a closing quote.
	toLike := like + `"%`
	rows, err := s.db.Query(messageSelect+`
		WHERE f.account_email = ? AND (
			LOWER(e.from_address) LIKE ? OR LOWER(e.to_addresses) LIKE ?
		)
		ORDER BY e.internal_date DESC LIMIT ? OFFSET ?
	`, accountEmail, like, toLike, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows, true)
}

// ListByFlag returns messages carrying the given IMAP flag (e.g. \Flagged).
func (s *Store) ListByFlag(accountEmail, folderID, flag string, limit, offset int) ([]*models.Message, error) {
	like := "%" + flag + "%"
	q := messageSelect + ` WHERE f.account_email = ? AND e.flags LIKE ?`
	args := []interface{}{accountEmail, like}
	if folderID != "" {
		q += ` AND e.folder_id = ?`
		args = append(args, folderID)
	}
	q += ` ORDER BY e.internal_date DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows, true)
}

// AddressReport aggregates cached traffic with one address, for the
// get_address_report MCP tool: how many messages were received from it and
// sent to it, and when it was last seen either way.
type AddressReport struct {
	Address       string
	ReceivedCount int
	SentCount     int
	LastSeen      time.Time
}

func (s *Store) AddressReport(accountEmail, address string) (*AddressReport, error) {
	r := &AddressReport{Address: address}
	like := "%" + strings.ToLower(address) + "%"

	var lastReceived, lastSent sql.NullTime
	err := s.db.QueryRow(`
		SELECT COUNT(*), MAX(e.internal_date) FROM emails e JOIN folders f ON e.folder_id = f.id
		WHERE f.account_email = ? AND LOWER(e.from_address) LIKE ?
	`, accountEmail, like).Scan(&r.ReceivedCount, &lastReceived)
	if err != nil {
		return nil, fmt.Errorf("cache: address report received: %w", err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*), MAX(e.internal_date) FROM emails e JOIN folders f ON e.folder_id = f.id
		WHERE f.account_email = ? AND LOWER(e.to_addresses) LIKE ?
	`, accountEmail, like).Scan(&r.SentCount, &lastSent)
	if err != nil {
		return nil, fmt.Errorf("cache: address report sent: %w", err)
	}

	if lastReceived.Valid && lastReceived.Time.After(r.LastSeen) {
		r.LastSeen = lastReceived.Time
	}
	if lastSent.Valid && lastSent.Time.After(r.LastSeen) {
		r.LastSeen = lastSent.Time
	}
	return r, nil
}

// GetThread returns every cached message sharing thread_id (or chained via
// in_reply_to/message_id), across all folders of the account.
func (s *Store) GetThread(accountEmail, threadID string) ([]*models.Message, error) {
	rows, err := s.db.Query(messageSelect+`
		WHERE f.account_email = ? AND (e.thread_id = ? OR e.message_id = ? OR e.in_reply_to = ?)
		ORDER BY e.internal_date ASC
	`, accountEmail, threadID, threadID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows, false)
}

// DeleteMessagesByUID removes cached rows for the given UIDs in one
// folder; used after an IMAP-side EXPUNGE so the cache mirrors remote state.
func (s *Store) DeleteMessagesByUID(accountEmail, folderID string, uids []uint32) error {
	owned, err := s.folderBelongsToAccount(accountEmail, folderID)
	if err != nil {
		return err
	}
	if !owned {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM emails WHERE folder_id = ? AND uid = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, uid := range uids {
		if _, err := stmt.Exec(folderID, uid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateFlags rewrites the flags JSON array for one UID in one folder.
func (s *Store) UpdateFlags(accountEmail, folderID string, uid uint32, flags []string) error {
	owned, err := s.folderBelongsToAccount(accountEmail, folderID)
	if err != nil {
		return err
	}
	if !owned {
		return nil
	}
	b, _ := json.Marshal(flags)
	_, err = s.db.Exec(`UPDATE emails SET flags = ?, updated_at = ? WHERE folder_id = ? AND uid = ?`,
		string(b), utils.Now(), folderID, uid)
	return err
}

// MoveMessage rewrites folder_id for one UID, preserving the row (and its
// id) rather than deleting and reinserting.
func (s *Store) MoveMessage(accountEmail, fromFolderID, toFolderID string, uid, newUID uint32) error {
	owned, err := s.folderBelongsToAccount(accountEmail, fromFolderID)
	if err != nil {
		return err
	}
	if !owned {
		return nil
	}
	_, err = s.db.Exec(`
		UPDATE emails SET folder_id = ?, uid = ?, updated_at = ?
		WHERE folder_id = ? AND uid = ?
	`, toFolderID, newUID, utils.Now(), fromFolderID, uid)
	return err
}

func (s *Store) folderBelongsToAccount(accountEmail, folderID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM folders WHERE id = ? AND account_email = ?`, folderID, accountEmail).Scan(&n)
	return n > 0, err
}

const messageSelect = `
SELECT e.id, e.folder_id, e.uid, e.message_id, e.thread_id, e.in_reply_to,
       e.direction, e.status, e.subject, e.from_address, e.from_name, e.reply_to,
       e.to_addresses, e.cc_addresses, e.bcc_addresses, e.body_text, e.body_html,
       e.has_attachment, e.flags, e.size, e.raw_headers, e.body_structure, e.classification,
       e.internal_date, e.created_at, e.updated_at
FROM emails e JOIN folders f ON e.folder_id = f.id
`

func scanMessage(row *sql.Row) (*models.Message, error) {
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func scanMessageRow(r scannable) (*models.Message, error) {
	var m models.Message
	var direction, status, to, cc, bcc, flags, headers, bodyStruct, classification string
	var internalDate sql.NullTime

	if err := r.Scan(
		&m.ID, &m.FolderID, &m.UID, &m.MessageID, &m.ThreadID, &m.InReplyTo,
		&direction, &status, &m.Subject, &m.FromAddress, &m.FromName, &m.ReplyTo,
		&to, &cc, &bcc, &m.BodyText, &m.BodyHTML,
		&m.HasAttachment, &flags, &m.Size, &headers, &bodyStruct, &classification,
		&internalDate, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Direction = enum.EmailDirection(direction)
	m.Status = enum.EmailStatus(status)
	m.Classification = enum.EmailClassification(classification)
	_ = json.Unmarshal([]byte(to), &m.ToAddresses)
	_ = json.Unmarshal([]byte(cc), &m.CcAddresses)
	_ = json.Unmarshal([]byte(bcc), &m.BccAddresses)
	_ = json.Unmarshal([]byte(flags), &m.Flags)
	_ = json.Unmarshal([]byte(headers), &m.RawHeaders)
	_ = json.Unmarshal([]byte(bodyStruct), &m.BodyStructure)
	if internalDate.Valid {
		m.InternalDate = internalDate.Time
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows, preview bool) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		if preview {
			m.BodyText = m.Preview()
			m.BodyHTML = ""
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
