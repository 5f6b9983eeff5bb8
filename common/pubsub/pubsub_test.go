package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBrokerBroadcast(t *testing.T) {
	b := NewBroker(false)

	ch1, sub1 := b.Subscribe()
	defer sub1.Close()
	ch2, sub2 := b.Subscribe()
	defer sub2.Close()

	b.Broadcast("hello")

	require.Equal(t, "hello", recvWithTimeout(t, ch1))
	require.Equal(t, "hello", recvWithTimeout(t, ch2))
}

func TestBrokerBroadcastLastReplaysToNewSubscriber(t *testing.T) {
	b := NewBroker(true)
	b.Broadcast("first")

	ch, sub := b.Subscribe()
	defer sub.Close()

	require.Equal(t, "first", recvWithTimeout(t, ch))
}

func TestSubscriptionCloseRemovesSubscriber(t *testing.T) {
	b := NewBroker(false)
	_, sub := b.Subscribe()
	require.Equal(t, 1, b.NumSubscribers())

	sub.Close()
	require.Equal(t, 0, b.NumSubscribers())

	// Closing twice must not panic.
	sub.Close()
}

func recvWithTimeout(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast value")
		return nil
	}
}
