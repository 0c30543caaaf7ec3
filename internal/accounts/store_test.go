package accounts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
)

func newTestAccount(email string) *models.Account {
	return &models.Account{
		EmailAddress: email,
		DisplayName:  "Test",
		Provider:     enum.EmailGeneric,
		ImapHost:     "imap.example.com",
		ImapPort:     993,
		ImapSecurity: enum.EmailSecuritySSL,
		ImapUsername: email,
		Password:     "s3cret",
		IsActive:     true,
	}
}

func TestAccountStoreAddGetDefault(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "accounts.json"), "")
	require.NoError(t, err)

	// Act
	require.NoError(t, s.AddAccount(newTestAccount("alice@example.com")))
	require.NoError(t, s.AddAccount(newTestAccount("bob@example.com")))
	require.NoError(t, s.SetDefaultAccount("bob@example.com"))

	// Assert
	got, err := s.GetAccount("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.EmailAddress)

	def, err := s.GetDefaultAccount()
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "bob@example.com", def.EmailAddress)

	list, err := s.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// Duplicate email addresses are rejected, since the email address is the
// principal identifier (§3).
func TestAccountStoreRejectsDuplicateEmail(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "accounts.json"), "")
	require.NoError(t, err)
	require.NoError(t, s.AddAccount(newTestAccount("alice@example.com")))

	// Act
	err = s.AddAccount(newTestAccount("alice@example.com"))

	// Assert
	assert.Error(t, err)
}

// The accounts.json file is written 0600 and credentials are encrypted at
// rest once a master key is configured (§3/§6).
func TestAccountStorePersistsEncryptedSecretsAtRest(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	s, err := Open(path, "a-real-master-key")
	require.NoError(t, err)
	require.NoError(t, s.AddAccount(newTestAccount("alice@example.com")))

	// Act
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)

	// Assert: the plaintext password never appears on disk, and the file
	// carries owner-only permissions.
	assert.NotContains(t, string(raw), "s3cret")
	assert.Contains(t, string(raw), "ENC:")
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Reopening decrypts transparently.
	reopened, err := Open(path, "a-real-master-key")
	require.NoError(t, err)
	got, err := reopened.GetAccount("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Password)
}
