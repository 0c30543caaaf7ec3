package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Subscribing delivers an immediate client_connected welcome event, then
// Publish fans out to every live subscriber (§4.10).
func TestBusPublishFansOutToAllSubscribers(t *testing.T) {
	// Arrange
	b := New()
	chA := b.Subscribe("a")
	chB := b.Subscribe("b")
	welcomeA := <-chA
	welcomeB := <-chB
	require.Equal(t, TopicClientConnected, welcomeA.Topic)
	require.Equal(t, TopicClientConnected, welcomeB.Topic)

	// Act
	b.Publish(TopicFolderChanged, map[string]string{"folder": "INBOX"})

	// Assert
	evA := <-chA
	evB := <-chB
	assert.Equal(t, TopicFolderChanged, evA.Topic)
	assert.Equal(t, TopicFolderChanged, evB.Topic)
	assert.Equal(t, uint64(2), evA.ID)
}

// PublishTo delivers to exactly one subscriber and never touches others.
func TestBusPublishToIsScopedToOneSubscriber(t *testing.T) {
	// Arrange
	b := New()
	chA := b.Subscribe("a")
	chB := b.Subscribe("b")
	<-chA
	<-chB

	// Act
	delivered := b.PublishTo("a", TopicSystemAlert, "hello")

	// Assert
	assert.True(t, delivered)
	ev := <-chA
	assert.Equal(t, TopicSystemAlert, ev.Topic)
	select {
	case <-chB:
		t.Fatal("subscriber b should not have received a's message")
	case <-time.After(10 * time.Millisecond):
	}

	// PublishTo against an unknown subscriber id is a no-op, reported back
	// to the caller rather than panicking.
	assert.False(t, b.PublishTo("nonexistent", TopicSystemAlert, "x"))
}

// A publish to a subscriber whose buffer is already full is dropped rather
// than blocking the publisher (§4.10).
func TestBusDropsEventsForSlowConsumerInsteadOfBlocking(t *testing.T) {
	// Arrange
	b := New()
	ch := b.Subscribe("slow")
	<-ch // drain the welcome event

	// Act: publish far more than the subscriber buffer can hold, without
	// ever draining it.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(TopicStatsUpdate, i)
		}
		close(done)
	}()

	// Assert: Publish must return promptly for every call, never blocking
	// on the full channel.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow consumer instead of dropping")
	}
}

// Unsubscribe closes the channel and removes the subscriber from the
// fan-out set.
func TestBusUnsubscribeClosesChannel(t *testing.T) {
	// Arrange
	b := New()
	ch := b.Subscribe("a")
	<-ch
	require.Equal(t, 1, b.SubscriberCount())

	// Act
	b.Unsubscribe("a")

	// Assert
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}
