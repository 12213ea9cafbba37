package live

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newIdleClient builds a client that is registered but never started, so
// payloads stay readable on its send channel
func newIdleClient(hub *Hub, projectID int64) *Client {
	return NewClient(hub, projectID, nil, zap.NewNop())
}

func TestHub_Broadcast_RoutesByProject(t *testing.T) {
	hub := NewHub(zap.NewNop())

	a := newIdleClient(hub, 1)
	b := newIdleClient(hub, 1)
	other := newIdleClient(hub, 2)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	hub.Broadcast(1, []byte("payload"))

	assert.Equal(t, []byte("payload"), <-a.send)
	assert.Equal(t, []byte("payload"), <-b.send)
	assert.Empty(t, other.send)
}

func TestHub_Broadcast_NoSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	// Must not panic or block
	hub.Broadcast(99, []byte("payload"))
}

func TestHub_Unregister_Idempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c := newIdleClient(hub, 1)
	hub.Register(c)
	require.Equal(t, 1, hub.SubscriberCount(1))

	hub.Unregister(c)
	hub.Unregister(c)

	assert.Equal(t, 0, hub.SubscriberCount(1))

	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_Broadcast_DropsOldestOnOverflow(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c := newIdleClient(hub, 1)
	hub.Register(c)

	overflow := 5
	for i := 0; i < sendBuffer+overflow; i++ {
		hub.Broadcast(1, []byte(fmt.Sprintf("payload-%d", i)))
	}

	// The oldest payloads were evicted; the newest are all present
	assert.Equal(t, []byte(fmt.Sprintf("payload-%d", overflow)), <-c.send)

	drained := 1
	for len(c.send) > 0 {
		last := <-c.send
		drained++
		if len(c.send) == 0 {
			assert.Equal(t, []byte(fmt.Sprintf("payload-%d", sendBuffer+overflow-1)), last)
		}
	}
	assert.Equal(t, sendBuffer, drained)
}

func TestHub_Broadcast_OverflowWithConcurrentDrain(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c := newIdleClient(hub, 1)
	hub.Register(c)

	total := sendBuffer * 10

	// Drain like the write pump does while broadcasts overflow the buffer
	received := make(chan []byte, total)
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for payload := range c.send {
			received <- payload
		}
	}()

	for i := 0; i < total; i++ {
		hub.Broadcast(1, []byte(fmt.Sprintf("payload-%d", i)))
	}
	hub.Unregister(c)

	select {
	case <-drainDone:
	case <-time.After(2 * time.Second):
		t.Fatal("drain goroutine did not finish")
	}

	// Every delivered payload is one of the broadcasts, in order, with no
	// duplicates
	close(received)
	last := -1
	count := 0
	for payload := range received {
		var n int
		_, err := fmt.Sscanf(string(payload), "payload-%d", &n)
		require.NoError(t, err)
		require.Greater(t, n, last)
		last = n
		count++
	}
	assert.Greater(t, count, 0)
	assert.LessOrEqual(t, count, total)
}

func TestHub_Run_ForwardsPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx, rdb)

	c := newIdleClient(hub, 7)
	hub.Register(c)

	broadcaster := NewRedisBroadcaster(rdb, zap.NewNop())

	// The subscription is established asynchronously; keep publishing until
	// the payload comes through.
	assert.Eventually(t, func() bool {
		if err := broadcaster.Publish(ctx, 7, []byte(`{"event":"page_view"}`)); err != nil {
			return false
		}
		select {
		case payload := <-c.send:
			return string(payload) == `{"event":"page_view"}`
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	// Shutdown closes every registered client
	assert.Eventually(t, func() bool {
		for {
			select {
			case _, open := <-c.send:
				if !open {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestProjectFromChannel(t *testing.T) {
	id, ok := projectFromChannel("events:live:42")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = projectFromChannel("events:live:")
	assert.False(t, ok)

	_, ok = projectFromChannel("events:live:abc")
	assert.False(t, ok)

	_, ok = projectFromChannel("other:channel")
	assert.False(t, ok)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "events:live:7", channelFor(7))
}
