package cache

import (
	"database/sql"
	"fmt"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// UpsertAccountMeta mirrors the non-secret account fields into the cache
// DB so folders/emails can carry a real foreign key; credentials never
// live here (see internal/accounts for the encrypted JSON store).
func (s *Store) UpsertAccountMeta(a *models.Account) error {
	now := utils.Now()
	_, err := s.db.Exec(`
		INSERT INTO accounts (email_address, display_name, provider, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email_address) DO UPDATE SET
			display_name = excluded.display_name,
			provider     = excluded.provider,
			is_active    = excluded.is_active,
			updated_at   = excluded.updated_at
	`, a.EmailAddress, a.DisplayName, a.Provider.String(), a.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("cache: upsert account meta: %w", err)
	}
	return nil
}

// SetDefaultAccount clears every is_default flag and sets it on email,
// enforcing the "exactly zero or one default" invariant at the store level.
func (s *Store) SetDefaultAccount(email string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE accounts SET is_default = 0`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE accounts SET is_default = 1 WHERE email_address = ?`, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("account", email)
	}
	return tx.Commit()
}

func (s *Store) DefaultAccountEmail() (string, error) {
	var email string
	err := s.db.QueryRow(`SELECT email_address FROM accounts WHERE is_default = 1 LIMIT 1`).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}

func (s *Store) ListAccountEmails() ([]string, error) {
	rows, err := s.db.Query(`SELECT email_address FROM accounts ORDER BY email_address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAccountMeta(email string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE email_address = ?`, email)
	return err
}
