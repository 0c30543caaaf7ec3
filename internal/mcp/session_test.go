package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/eventbus"
)

// §8 property 8: a reconnect with Last-Event-ID=k replays exactly the
// events with id > k still held in the buffer window.
func TestSessionReplaySinceReturnsOnlyNewerEvents(t *testing.T) {
	// Arrange
	mgr := NewSessionManager(0)
	sess := mgr.Create()
	for i := uint64(1); i <= 5; i++ {
		sess.record(eventbus.Event{ID: i, Topic: eventbus.TopicFolderChanged})
	}

	// Act
	replay := sess.replaySince(3)

	// Assert: only ids 4 and 5, in order
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(4), replay[0].ID)
	assert.Equal(t, uint64(5), replay[1].ID)
}

// Asking to replay since the newest delivered id yields nothing new.
func TestSessionReplaySinceAtHeadIsEmpty(t *testing.T) {
	// Arrange
	mgr := NewSessionManager(0)
	sess := mgr.Create()
	sess.record(eventbus.Event{ID: 1})
	sess.record(eventbus.Event{ID: 2})

	// Act
	replay := sess.replaySince(2)

	// Assert
	assert.Empty(t, replay)
}

// Once the ring buffer wraps, the oldest events are evicted but everything
// still held is returned in the correct order.
func TestSessionReplayBufferWrapsWithoutReordering(t *testing.T) {
	// Arrange
	mgr := NewSessionManager(0)
	sess := mgr.Create()
	total := uint64(replayBufferSize + 10)
	for i := uint64(1); i <= total; i++ {
		sess.record(eventbus.Event{ID: i})
	}

	// Act: ask for everything after the point where the buffer would have
	// started evicting.
	replay := sess.replaySince(total - 5)

	// Assert
	require.Len(t, replay, 5)
	for idx, ev := range replay {
		assert.Equal(t, total-5+uint64(idx)+1, ev.ID)
	}

	// Anything older than the eviction horizon is simply gone from the
	// window, not an error.
	oldest := sess.replaySince(0)
	assert.Len(t, oldest, replayBufferSize)
	assert.Equal(t, total-uint64(replayBufferSize)+1, oldest[0].ID)
}
