package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// storedAccount is the on-disk shape of one account in accounts.json.
// Unlike models.Account (whose secret fields carry json:"-" so the REST
// layer never echoes them back), every field here round-trips, with
// secrets held as ciphertext once an encryption key is configured.
type storedAccount struct {
	DisplayName  string             `json:"display_name"`
	EmailAddress string             `json:"email_address"`
	Provider     enum.EmailProvider `json:"provider_type"`

	ImapHost     string             `json:"imap_host"`
	ImapPort     int                `json:"imap_port"`
	ImapSecurity enum.EmailSecurity `json:"imap_security"`
	ImapUsername string             `json:"imap_username"`
	Password     string             `json:"password,omitempty"`

	SmtpHost     string             `json:"smtp_host,omitempty"`
	SmtpPort     int                `json:"smtp_port,omitempty"`
	SmtpSecurity enum.EmailSecurity `json:"smtp_security,omitempty"`
	SmtpUsername string             `json:"smtp_username,omitempty"`

	OAuthProvider     string     `json:"oauth_provider,omitempty"`
	OAuthClientID     string     `json:"oauth_client_id,omitempty"`
	OAuthClientSecret string     `json:"oauth_client_secret,omitempty"`
	OAuthAccessToken  string     `json:"oauth_access_token,omitempty"`
	OAuthRefreshToken string     `json:"oauth_refresh_token,omitempty"`
	OAuthTokenExpiry  *time.Time `json:"oauth_token_expiry,omitempty"`

	IsActive      bool       `json:"is_active"`
	DisplayOrder  int        `json:"display_order"`
	DailySendQuota int       `json:"daily_send_quota"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// accountsFile is the root JSON document, grounded directly on
// original_source's AccountsConfig: a version tag, one optional default
// account id, and the account list.
type accountsFile struct {
	Version          string          `json:"version"`
	DefaultAccountID string          `json:"default_account_id,omitempty"`
	Accounts         []storedAccount `json:"accounts"`
}

const currentVersion = "1.0"

// Store is the encrypted JSON Credential Store. All access is guarded by
// one mutex and goes through load/save, which re-reads/rewrites the whole
// file — acceptable for the expected account-count scale (tens, not
// millions) per §3.
type Store struct {
	path      string
	encryptor *Encryptor
	mu        sync.Mutex
}

// Open loads (creating if absent) the accounts.json file at path.
func Open(path, masterKey string) (*Store, error) {
	enc, err := NewEncryptor(masterKey)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, encryptor: enc}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(&accountsFile{Version: currentVersion}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("accounts: stat %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load() (*accountsFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("accounts: read %s: %w", s.path, err)
	}
	var f accountsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("accounts: parse %s: %w", s.path, err)
	}
	for i := range f.Accounts {
		if err := s.decryptInPlace(&f.Accounts[i]); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// save writes the file atomically: encrypt a copy, marshal, write to a
// temp file in the same directory, fsync-equivalent close, then rename
// over the target — the original account store's exact write sequence.
func (s *Store) save(f *accountsFile) error {
	if f.Version == "" {
		f.Version = currentVersion
	}
	encrypted := *f
	encrypted.Accounts = make([]storedAccount, len(f.Accounts))
	copy(encrypted.Accounts, f.Accounts)
	for i := range encrypted.Accounts {
		if err := s.encryptInPlace(&encrypted.Accounts[i]); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("accounts: mkdir %s: %w", dir, err)
		}
	}

	raw, err := json.MarshalIndent(&encrypted, "", "  ")
	if err != nil {
		return fmt.Errorf("accounts: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("accounts: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("accounts: rename %s -> %s: %w", tmp, s.path, err)
	}
	return nil
}

func (s *Store) encryptInPlace(a *storedAccount) error {
	var err error
	if a.Password, err = s.encryptor.Encrypt(a.Password); err != nil {
		return err
	}
	if a.OAuthClientSecret, err = s.encryptor.Encrypt(a.OAuthClientSecret); err != nil {
		return err
	}
	if a.OAuthAccessToken, err = s.encryptor.Encrypt(a.OAuthAccessToken); err != nil {
		return err
	}
	if a.OAuthRefreshToken, err = s.encryptor.Encrypt(a.OAuthRefreshToken); err != nil {
		return err
	}
	return nil
}

func (s *Store) decryptInPlace(a *storedAccount) error {
	var err error
	if a.Password, err = s.encryptor.Decrypt(a.Password); err != nil {
		return err
	}
	if a.OAuthClientSecret, err = s.encryptor.Decrypt(a.OAuthClientSecret); err != nil {
		return err
	}
	if a.OAuthAccessToken, err = s.encryptor.Decrypt(a.OAuthAccessToken); err != nil {
		return err
	}
	if a.OAuthRefreshToken, err = s.encryptor.Decrypt(a.OAuthRefreshToken); err != nil {
		return err
	}
	return nil
}

// AddAccount inserts a new account, rejecting a duplicate email address.
func (s *Store) AddAccount(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range f.Accounts {
		if existing.EmailAddress == a.EmailAddress {
			return apierr.Conflict(fmt.Sprintf("account %q already exists", a.EmailAddress))
		}
	}
	now := utils.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	f.Accounts = append(f.Accounts, fromModel(a))
	return s.save(f)
}

func (s *Store) GetAccount(email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range f.Accounts {
		if f.Accounts[i].EmailAddress == email {
			return toModel(&f.Accounts[i]), nil
		}
	}
	return nil, apierr.NotFound("account", email)
}

func (s *Store) ListAccounts() ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(f.Accounts))
	for i := range f.Accounts {
		out = append(out, toModel(&f.Accounts[i]))
	}
	return out, nil
}

// UpdateAccount overwrites the stored row matching a.EmailAddress.
func (s *Store) UpdateAccount(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	for i := range f.Accounts {
		if f.Accounts[i].EmailAddress == a.EmailAddress {
			a.UpdatedAt = utils.Now()
			f.Accounts[i] = fromModel(a)
			return s.save(f)
		}
	}
	return apierr.NotFound("account", a.EmailAddress)
}

// DeleteAccount removes the account and clears it as default if it was one.
func (s *Store) DeleteAccount(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	idx := -1
	for i := range f.Accounts {
		if f.Accounts[i].EmailAddress == email {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apierr.NotFound("account", email)
	}
	f.Accounts = append(f.Accounts[:idx], f.Accounts[idx+1:]...)
	if f.DefaultAccountID == email {
		f.DefaultAccountID = ""
	}
	return s.save(f)
}

func (s *Store) GetDefaultAccount() (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	if f.DefaultAccountID == "" {
		return nil, nil
	}
	for i := range f.Accounts {
		if f.Accounts[i].EmailAddress == f.DefaultAccountID {
			return toModel(&f.Accounts[i]), nil
		}
	}
	return nil, nil
}

// SetDefaultAccount enforces "exactly zero or one default account" by
// construction: there is only ever one default_account_id field to set.
func (s *Store) SetDefaultAccount(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for _, a := range f.Accounts {
		if a.EmailAddress == email {
			found = true
			break
		}
	}
	if !found {
		return apierr.NotFound("account", email)
	}
	f.DefaultAccountID = email
	return s.save(f)
}

func fromModel(a *models.Account) storedAccount {
	return storedAccount{
		DisplayName:       a.DisplayName,
		EmailAddress:      a.EmailAddress,
		Provider:          a.Provider,
		ImapHost:          a.ImapHost,
		ImapPort:          a.ImapPort,
		ImapSecurity:      a.ImapSecurity,
		ImapUsername:      a.ImapUsername,
		Password:          a.Password,
		SmtpHost:          a.SmtpHost,
		SmtpPort:          a.SmtpPort,
		SmtpSecurity:      a.SmtpSecurity,
		SmtpUsername:      a.SmtpUsername,
		OAuthProvider:     a.OAuthProvider,
		OAuthClientID:     a.OAuthClientID,
		OAuthClientSecret: a.OAuthClientSecret,
		OAuthAccessToken:  a.OAuthAccessToken,
		OAuthRefreshToken: a.OAuthRefreshToken,
		OAuthTokenExpiry:  a.OAuthTokenExpiry,
		IsActive:          a.IsActive,
		DisplayOrder:      a.DisplayOrder,
		DailySendQuota:    a.DailySendQuota,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toModel(sa *storedAccount) *models.Account {
	return &models.Account{
		DisplayName:       sa.DisplayName,
		EmailAddress:      sa.EmailAddress,
		Provider:          sa.Provider,
		ImapHost:          sa.ImapHost,
		ImapPort:          sa.ImapPort,
		ImapSecurity:      sa.ImapSecurity,
		ImapUsername:      sa.ImapUsername,
		Password:          sa.Password,
		SmtpHost:          sa.SmtpHost,
		SmtpPort:          sa.SmtpPort,
		SmtpSecurity:      sa.SmtpSecurity,
		SmtpUsername:      sa.SmtpUsername,
		OAuthProvider:     sa.OAuthProvider,
		OAuthClientID:     sa.OAuthClientID,
		OAuthClientSecret: sa.OAuthClientSecret,
		OAuthAccessToken:  sa.OAuthAccessToken,
		OAuthRefreshToken: sa.OAuthRefreshToken,
		OAuthTokenExpiry:  sa.OAuthTokenExpiry,
		IsActive:          sa.IsActive,
		DisplayOrder:      sa.DisplayOrder,
		DailySendQuota:    sa.DailySendQuota,
		CreatedAt:         sa.CreatedAt,
		UpdatedAt:         sa.UpdatedAt,
	}
}
