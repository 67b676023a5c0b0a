package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpush-service/internal/models"
)

const (
	fpA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	fpB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestHubRegisterSendsConnected(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	ch := &fakeChannel{}

	c, err := hub.Register("alice", fpA, ch)
	require.NoError(t, err)
	defer hub.Remove(c)

	events := ch.named(EventConnected)
	require.Len(t, events, 1)
	assert.Equal(t, `"SSE connection established"`, events[0].Data)
	assert.Equal(t, 1, hub.Count("alice"))
}

func TestHubSendReachesOnlyThatUser(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	a1, a2, b := &fakeChannel{}, &fakeChannel{}, &fakeChannel{}
	_, err := hub.Register("alice", fpA, a1)
	require.NoError(t, err)
	_, err = hub.Register("alice", fpB, a2)
	require.NoError(t, err)
	_, err = hub.Register("bob", fpA, b)
	require.NoError(t, err)

	hub.Send("alice", EventNewNotification, map[string]string{"id": "n1"})

	for _, ch := range []*fakeChannel{a1, a2} {
		got := ch.named(EventNewNotification)
		require.Len(t, got, 1)
		assert.JSONEq(t, `{"id":"n1"}`, got[0].Data)
	}
	assert.Empty(t, b.named(EventNewNotification))
}

func TestHubReconnectSupersedesDevice(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	first, second := &fakeChannel{}, &fakeChannel{}

	c1, err := hub.Register("alice", fpA, first)
	require.NoError(t, err)
	c2, err := hub.Register("alice", fpA, second)
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Count("alice"))
	assert.Equal(t, 1, first.closeCount())
	select {
	case <-c1.Done():
	default:
		t.Fatal("superseded connection not closed")
	}

	// The old request's own cleanup must not evict the new channel.
	hub.Remove(c1)
	assert.Equal(t, 1, hub.Count("alice"))

	hub.Send("alice", EventHeartbeat, "x")
	assert.Empty(t, first.named(EventHeartbeat))
	assert.Len(t, second.named(EventHeartbeat), 1)

	hub.Remove(c2)
	assert.Equal(t, 0, hub.Count("alice"))
}

func TestHubRemoveIsIdempotent(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	ch := &fakeChannel{}
	c, err := hub.Register("alice", fpA, ch)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		hub.Remove(c)
		hub.Remove(c)
	})
	assert.Equal(t, 1, ch.closeCount())
	assert.Equal(t, 0, hub.Count("alice"))
}

func TestHubSendEvictsOnlyFailingChannel(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	good, bad := &fakeChannel{}, &fakeChannel{}
	_, err := hub.Register("alice", fpA, good)
	require.NoError(t, err)
	cBad, err := hub.Register("alice", fpB, bad)
	require.NoError(t, err)

	bad.fail()
	hub.Send("alice", EventNewNotification, "n1")

	assert.Equal(t, 1, hub.Count("alice"))
	assert.Len(t, good.named(EventNewNotification), 1)
	<-cBad.Done()
	assert.Equal(t, 1, bad.closeCount())
}

func TestHubDropsUserWhenLastChannelFails(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	ch := &fakeChannel{}
	_, err := hub.Register("alice", fpA, ch)
	require.NoError(t, err)

	ch.fail()
	hub.Send("alice", EventNewNotification, "n1")

	hub.mu.Lock()
	_, present := hub.conns["alice"]
	hub.mu.Unlock()
	assert.False(t, present)
}

func TestHubHeartbeat(t *testing.T) {
	hub := NewHub(10*time.Millisecond, 0, testLogger())
	ch := &fakeChannel{}
	c, err := hub.Register("alice", fpA, ch)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(ch.named(EventHeartbeat)) >= 2
	}, time.Second, 5*time.Millisecond)

	ch.fail()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("failed heartbeat did not remove the connection")
	}
	assert.Equal(t, 0, hub.Count("alice"))
}

func TestHubHeartbeatStopsOnRemove(t *testing.T) {
	hub := NewHub(5*time.Millisecond, 0, testLogger())
	ch := &fakeChannel{}
	c, err := hub.Register("alice", fpA, ch)
	require.NoError(t, err)

	hub.Remove(c)
	n := len(ch.named(EventHeartbeat))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(ch.named(EventHeartbeat)))
}

func TestHubPerUserLimit(t *testing.T) {
	hub := NewHub(0, 1, testLogger())
	_, err := hub.Register("alice", fpA, &fakeChannel{})
	require.NoError(t, err)

	_, err = hub.Register("alice", fpB, &fakeChannel{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrResourceExhausted))

	// Reconnecting the same device is not a new connection.
	_, err = hub.Register("alice", fpA, &fakeChannel{})
	assert.NoError(t, err)
}

func TestHubConcurrentLifecycle(t *testing.T) {
	hub := NewHub(time.Millisecond, 0, testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("%064x", i%4)
			for j := 0; j < 20; j++ {
				c, err := hub.Register("alice", fp, &fakeChannel{})
				if err != nil {
					t.Error(err)
					return
				}
				hub.Send("alice", EventNewNotification, j)
				hub.Remove(c)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Count("alice"))
}

func TestHubClose(t *testing.T) {
	hub := NewHub(0, 0, testLogger())
	a, b := &fakeChannel{}, &fakeChannel{}
	_, _ = hub.Register("alice", fpA, a)
	_, _ = hub.Register("bob", fpB, b)

	hub.Close()
	assert.Equal(t, 0, hub.Count("alice"))
	assert.Equal(t, 0, hub.Count("bob"))
	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())
}
