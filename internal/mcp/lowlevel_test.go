package mcp

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/accounts"
	"github.com/customeros/mailstack/internal/attachments"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	dir := t.TempDir()

	cacheStore, err := cache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cacheStore.Close() })

	acctStore, err := accounts.Open(filepath.Join(dir, "accounts.json"), "")
	require.NoError(t, err)
	require.NoError(t, acctStore.AddAccount(&models.Account{
		EmailAddress: "alice@example.com",
		DisplayName:  "Alice",
		Provider:     enum.EmailGeneric,
		ImapHost:     "imap.example.com",
		ImapPort:     993,
		ImapSecurity: enum.EmailSecuritySSL,
		ImapUsername: "alice@example.com",
		Password:     "s3cret",
		IsActive:     true,
	}))
	require.NoError(t, acctStore.SetDefaultAccount("alice@example.com"))
	// Mirror the account into the cache so attachment rows satisfy their
	// account_email foreign key.
	require.NoError(t, cacheStore.UpsertAccountMeta(&models.Account{
		EmailAddress: "alice@example.com",
		DisplayName:  "Alice",
		Provider:     enum.EmailGeneric,
		IsActive:     true,
	}))

	return &Services{
		Cache:       cacheStore,
		Accounts:    acctStore,
		Attachments: attachments.NewStore(filepath.Join(dir, "attachments")),
	}
}

// download_email_attachments_zip fails with NotFound when a message has no
// attachments (§4.4's "failing with NotFound when none exist").
func TestDownloadEmailAttachmentsZipNotFound(t *testing.T) {
	// Arrange
	svc := newTestServices(t)
	reg := NewRegistry()
	RegisterLowLevelTools(reg, svc)
	tool, ok := reg.Get("download_email_attachments_zip")
	require.True(t, ok)

	// Act
	_, err := tool.Handler(context.Background(), &Session{}, map[string]interface{}{"message_id": "no-such-message"})

	// Assert
	require.Error(t, err)
}

// download_email_attachments_zip streams a valid ZIP containing every
// attachment stored for the message.
func TestDownloadEmailAttachmentsZip(t *testing.T) {
	// Arrange
	svc := newTestServices(t)
	reg := NewRegistry()
	RegisterLowLevelTools(reg, svc)

	path, err := svc.Attachments.Upload(context.Background(), "alice@example.com", "msg-1", "report.pdf", []byte("pdf-bytes"))
	require.NoError(t, err)
	require.NoError(t, svc.Cache.UpsertAttachmentMeta(&models.Attachment{
		MessageID:    "msg-1",
		AccountEmail: "alice@example.com",
		Filename:     "report.pdf",
		ContentType:  "application/pdf",
		Size:         9,
		StoragePath:  path,
	}))

	tool, ok := reg.Get("download_email_attachments_zip")
	require.True(t, ok)

	// Act
	result, err := tool.Handler(context.Background(), &Session{}, map[string]interface{}{"message_id": "msg-1"})
	require.NoError(t, err)

	// Assert
	out, ok := result.(map[string]interface{})
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(out["base64"].(string))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "report.pdf", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))
}
