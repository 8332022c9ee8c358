package changefeed

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_Broadcast(t *testing.T) {
	broker := NewBroker[MembershipChange](nil)
	first := broker.Subscribe()
	second := broker.Subscribe()
	assert.Equal(t, 2, broker.Len())
	assert.NotEqual(t, first.ID(), second.ID())

	change := MembershipChange{Op: OpInsert, WorkspaceID: uuid.New(), IdentityID: uuid.New(), At: time.Now()}
	broker.Publish(change)

	for _, sub := range []*Subscription[MembershipChange]{first, second} {
		select {
		case got := <-sub.Events():
			assert.Equal(t, change, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	broker := NewBroker[MembershipChange](nil)
	sub := broker.Subscribe()

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.Len())

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")

	// Publishing after unsubscribe must not panic.
	broker.Publish(MembershipChange{Op: OpDelete})
}

func TestSubscription_PublishAfterClose(t *testing.T) {
	sub := NewSubscription[int](1)
	require.True(t, sub.Publish(1))

	sub.Close()
	sub.Close()
	assert.False(t, sub.Publish(2))
}

func TestSubscription_FullBufferDrops(t *testing.T) {
	sub := NewSubscription[int](1)
	require.True(t, sub.Publish(1))
	assert.False(t, sub.Publish(2))
}
