package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
)

func enqueueTestItem(t *testing.T, s *Store, email string) *models.OutboxItem {
	t.Helper()
	item := &models.OutboxItem{
		AccountEmail: email,
		ToAddresses:  []string{"dest@example.com"},
		Subject:      "hello",
		BodyText:     "hi",
	}
	require.NoError(t, s.EnqueueOutboxItem(item))
	return item
}

// ClaimNextPending flips an item to Sending exactly once; a second claim
// while it is Sending returns nothing, the single serialization point
// Worker.processOne relies on to never double-send the same item (§8
// property 4).
func TestClaimNextPendingIsSingleClaim(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	enqueueTestItem(t, s, "alice@example.com")

	// Act
	first, err := s.ClaimNextPending()
	require.NoError(t, err)
	second, err := s.ClaimNextPending()
	require.NoError(t, err)

	// Assert
	require.NotNil(t, first)
	assert.Equal(t, enum.OutboxStatusSending, first.Status)
	assert.Nil(t, second)
}

// Once smtp_sent is recorded, RetryOutboxItem is a guaranteed no-op even
// after repeated calls simulating worker crashes during the advisory Sent
// APPEND stage — smtp_sent is the sole gate on ever resending over SMTP
// (§4.6, §8 property 4).
func TestSmtpSentCheckpointPreventsResendAcrossSimulatedCrashes(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	item := enqueueTestItem(t, s, "alice@example.com")
	claimed, err := s.ClaimNextPending()
	require.NoError(t, err)
	require.NoError(t, s.MarkOutboxSaved(claimed.ID))
	require.NoError(t, s.MarkSmtpSent(claimed.ID))

	// Act: simulate five induced crashes between the SMTP send and the
	// advisory Sent-folder append, each one calling RetryOutboxItem the
	// way processOne does on an appendToFolder failure.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RetryOutboxItem(claimed.ID, "simulated Sent-folder append failure"))
	}

	// Assert: status never reverted to Pending/Failed and retry_count never
	// incremented, so a restarted worker would see smtp_sent=true and skip
	// Stage B entirely rather than invoking the SMTP sender again.
	got, err := s.GetOutboxItem(item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.SmtpSent)
	assert.Equal(t, 0, got.RetryCount)
	assert.NotEqual(t, enum.OutboxStatusPending, got.Status)
	assert.NotEqual(t, enum.OutboxStatusFailed, got.Status)

	// Finishing the advisory Sent-folder stage is what finally marks the
	// item Complete.
	require.NoError(t, s.MarkSentFolderSaved(claimed.ID))
	got, err = s.GetOutboxItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OutboxStatusComplete, got.Status)
}

// Before smtp_sent is set, a failure legitimately reverts the item to
// Pending (up to max_retries) so the SMTP send itself can be retried.
func TestRetryOutboxItemReentersPendingBeforeSmtpSent(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	seedAccount(t, s, "alice@example.com")
	item := enqueueTestItem(t, s, "alice@example.com")
	claimed, err := s.ClaimNextPending()
	require.NoError(t, err)

	// Act: a credential-resolution or SMTP-dial failure before smtp_sent.
	require.NoError(t, s.RetryOutboxItem(claimed.ID, "smtp dial: connection refused"))

	// Assert
	got, err := s.GetOutboxItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OutboxStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	// And it becomes claimable again for another attempt.
	reclaimed, err := s.ClaimNextPending()
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}
