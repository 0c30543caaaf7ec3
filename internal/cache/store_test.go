package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, email string) {
	t.Helper()
	require.NoError(t, s.UpsertAccountMeta(&models.Account{
		EmailAddress: email,
		DisplayName:  email,
		Provider:     enum.EmailGeneric,
		IsActive:     true,
	}))
}

// §8 property 1: multi-tenant isolation. Two accounts with folders of the
// identical name and disjoint emails must never leak rows across accounts.
func TestMultiTenantIsolation(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	seedAccount(t, s, "bob@example.com")

	aliceInbox := models.NewFolder("alice@example.com", "INBOX", "/", nil)
	bobInbox := models.NewFolder("bob@example.com", "INBOX", "/", nil)
	require.NoError(t, s.UpsertFolder(aliceInbox))
	require.NoError(t, s.UpsertFolder(bobInbox))

	require.NoError(t, s.UpsertMessage(&models.Message{
		FolderID: aliceInbox.ID, UID: 1, Subject: "alice's secret",
	}))
	require.NoError(t, s.UpsertMessage(&models.Message{
		FolderID: bobInbox.ID, UID: 1, Subject: "bob's secret",
	}))
	require.NoError(t, s.UpsertMessage(&models.Message{
		FolderID: bobInbox.ID, UID: 2, Subject: "bob's other secret",
	}))

	// Act
	aliceCount, err := s.CountMessages("alice@example.com", aliceInbox.ID)
	require.NoError(t, err)
	bobCount, err := s.CountMessages("bob@example.com", bobInbox.ID)
	require.NoError(t, err)

	aliceList, err := s.ListMessages("alice@example.com", aliceInbox.ID, 50, 0, false)
	require.NoError(t, err)
	bobList, err := s.ListMessages("bob@example.com", bobInbox.ID, 50, 0, false)
	require.NoError(t, err)

	// Assert: counts are strictly per-account
	assert.Equal(t, 1, aliceCount)
	assert.Equal(t, 2, bobCount)
	require.Len(t, aliceList, 1)
	require.Len(t, bobList, 2)
	assert.Equal(t, "alice's secret", aliceList[0].Subject)

	// Cross-account reads through an honest folder id never cross the
	// tenant boundary: asking for bob's folder under alice's email fails
	// closed because GetFolderByID is also account-scoped.
	leaked, err := s.GetFolderByID("alice@example.com", bobInbox.ID)
	require.NoError(t, err)
	assert.Nil(t, leaked)

	// Searching bob's cache for alice's subject returns nothing.
	found, err := s.SearchMessages("bob@example.com", "", "alice's secret", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// §8 property 2: idempotent cache upsert. Caching the same (folder, uid) N
// times yields exactly one row, equal to the last input.
func TestIdempotentCacheUpsert(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	inbox := models.NewFolder("alice@example.com", "INBOX", "/", nil)
	require.NoError(t, s.UpsertFolder(inbox))

	// Act: cache the same (folder, uid) five times with a changing subject
	for i, subject := range []string{"v1", "v2", "v3", "v4", "final"} {
		err := s.UpsertMessage(&models.Message{
			FolderID: inbox.ID, UID: 42, Subject: subject, Size: i,
		})
		require.NoError(t, err)
	}

	// Assert
	count, err := s.CountMessages("alice@example.com", inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msg, err := s.GetMessageByUID("alice@example.com", inbox.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "final", msg.Subject)
}

// §8 property 3: monotonic sync cursor within a UIDVALIDITY epoch, and the
// explicit reset path on a UIDVALIDITY discontinuity (§4.5 step 2).
func TestSyncCursorMonotonic(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	inbox := models.NewFolder("alice@example.com", "INBOX", "/", nil)
	require.NoError(t, s.UpsertFolder(inbox))
	require.NoError(t, s.InitSyncCursor(inbox.ID, 1001))

	// Act: advance forward twice within the same epoch
	require.NoError(t, s.AdvanceCursor(inbox.ID, 1001, 10))
	require.NoError(t, s.AdvanceCursor(inbox.ID, 1001, 25))

	cursor, err := s.GetSyncCursor(inbox.ID)
	require.NoError(t, err)

	// Assert: cursor only moved forward
	assert.EqualValues(t, 25, cursor.LastUIDSynced)
	assert.EqualValues(t, 1001, cursor.UIDValidity)

	// A stale caller trying to advance under the old epoch to a position
	// behind where the cursor already is must fail, not silently regress.
	err = s.AdvanceCursor(inbox.ID, 1001, 5)
	assert.Error(t, err)

	// A genuine UIDVALIDITY discontinuity resets to 0 under the new epoch —
	// this is the one place the monotonicity invariant is intentionally
	// broken (§4.5 step 2).
	require.NoError(t, s.ResetCursor(inbox.ID, 2002))
	cursor, err = s.GetSyncCursor(inbox.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, cursor.LastUIDSynced)
	assert.EqualValues(t, 2002, cursor.UIDValidity)

	// And sync can resume forward again under the new epoch.
	require.NoError(t, s.AdvanceCursor(inbox.ID, 2002, 3))
	cursor, err = s.GetSyncCursor(inbox.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cursor.LastUIDSynced)
}
