package accounts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// §8 property 6 (half): for any plaintext P, decrypt(encrypt(P)) == P.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	// Arrange
	enc, err := NewEncryptor("a passphrase long enough to be interesting")
	require.NoError(t, err)

	for _, plain := range []string{"hunter2", "a very long app-specific password with spaces", "ünïcödé"} {
		// Act
		ciphertext, err := enc.Encrypt(plain)
		require.NoError(t, err)
		decrypted, err := enc.Decrypt(ciphertext)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, plain, decrypted)
		assert.True(t, strings.HasPrefix(ciphertext, "ENC:"))
	}
}

// §8 property 6 (other half): re-encrypting an already-ENC:-prefixed value
// is a no-op, per the ENC: prefix idempotent re-encryption guard.
func TestEncryptIsIdempotentOnAlreadyEncryptedValues(t *testing.T) {
	// Arrange
	enc, err := NewEncryptor("master-key")
	require.NoError(t, err)
	once, err := enc.Encrypt("super-secret")
	require.NoError(t, err)

	// Act
	twice, err := enc.Encrypt(once)
	require.NoError(t, err)

	// Assert: the ciphertext is untouched, not wrapped a second time
	assert.Equal(t, once, twice)
	decrypted, err := enc.Decrypt(twice)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", decrypted)
}

// An empty master key disables encryption entirely (§6: "missing -> warning,
// disabled") rather than failing to start.
func TestEncryptorDisabledWithoutMasterKey(t *testing.T) {
	// Arrange
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	// Act
	out, err := enc.Encrypt("plaintext")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "plaintext", out)
	assert.False(t, enc.Enabled())
}
