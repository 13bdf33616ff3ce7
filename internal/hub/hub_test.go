package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchline/pulse/internal/event"
	"github.com/pitchline/pulse/internal/session"
)

// fakeClock lets tests advance the actor's view of time without a
// background sweep existing anywhere.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func startHub(t *testing.T, opts Options) (*Hub, *fakeClock) {
	t.Helper()
	if opts.QueueSize == 0 {
		opts.QueueSize = 64
	}
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 16
	}
	h := New(opts)
	clock := &fakeClock{cur: time.Now()}
	h.now = clock.now

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, clock
}

func principal(id, name string) session.Principal {
	return session.Principal{ID: id, DisplayName: name, Role: "user"}
}

func recvEnvelope(t *testing.T, c *Conn) event.Envelope {
	t.Helper()
	select {
	case b, ok := <-c.Mailbox():
		require.True(t, ok, "mailbox closed")
		var env event.Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return event.Envelope{}
	}
}

func assertNoEnvelope(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case b, ok := <-c.Mailbox():
		if ok {
			t.Fatalf("unexpected envelope: %s", b)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushToPrincipalReachesAllConnections(t *testing.T) {
	h, _ := startHub(t, Options{})

	// two tabs for the same principal
	c1, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)
	c2, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)

	res, err := h.Push("42", event.New("chat_message", json.RawMessage(`{"text":"hi"}`)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recipients)

	for _, c := range []*Conn{c1, c2} {
		env := recvEnvelope(t, c)
		assert.Equal(t, "chat_message", env.Type)
		assert.JSONEq(t, `{"text":"hi"}`, string(env.Data))
		assertNoEnvelope(t, c)
	}
}

func TestPushWithNoConnectionsSucceeds(t *testing.T) {
	h, _ := startHub(t, Options{})

	res, err := h.Push("7", event.New("nda_status_update", json.RawMessage(`{"status":"signed"}`)))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Recipients)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h, _ := startHub(t, Options{})

	c, err := h.Register(principal("9", "Bo"), false)
	require.NoError(t, err)

	c.Subscribe("content:123")
	c.Subscribe("content:123")

	res, err := h.Push("content:123", event.New("view_count", json.RawMessage(`{"views":10}`)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)

	env := recvEnvelope(t, c)
	assert.Equal(t, "view_count", env.Type)
	assertNoEnvelope(t, c)
}

func TestRemoveSweepsEveryChannel(t *testing.T) {
	h, _ := startHub(t, Options{})

	c, err := h.Register(principal("9", "Bo"), false)
	require.NoError(t, err)
	c.Subscribe("content:1")
	c.Subscribe("content:2")

	s := h.Stats()
	assert.Equal(t, 1, s.Connections)
	assert.Equal(t, 3, s.Channels) // user:9 plus the two content channels

	c.Close()
	c.Close() // idempotent

	s = h.Stats()
	assert.Equal(t, 0, s.Connections)
	assert.Equal(t, 0, s.Channels)

	res, err := h.Push("content:1", event.New("view_count", json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Recipients)
}

func TestDeliveryOrderPerConnection(t *testing.T) {
	h, _ := startHub(t, Options{})

	c, err := h.Register(principal("3", "Cy"), false)
	require.NoError(t, err)

	for _, typ := range []string{"first", "second", "third"} {
		_, err := h.Push("3", event.New(typ, json.RawMessage(`{}`)))
		require.NoError(t, err)
	}
	assert.Equal(t, "first", recvEnvelope(t, c).Type)
	assert.Equal(t, "second", recvEnvelope(t, c).Type)
	assert.Equal(t, "third", recvEnvelope(t, c).Type)
}

func TestSlowConsumerIsRemovedWithoutStallingOthers(t *testing.T) {
	h, _ := startHub(t, Options{SendBuffer: 1})

	slow, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)
	fast, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)

	// first push fills both one-slot mailboxes
	res, err := h.Push("42", event.New("first", json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recipients)

	// fast drains, slow does not
	assert.Equal(t, "first", recvEnvelope(t, fast).Type)

	res, err = h.Push("42", event.New("second", json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)

	assert.Equal(t, "second", recvEnvelope(t, fast).Type)
	assert.Equal(t, 1, h.Stats().Connections)

	// the slow connection still holds its first envelope, then the
	// closed mailbox
	assert.Equal(t, "first", recvEnvelope(t, slow).Type)
	_, ok := <-slow.Mailbox()
	assert.False(t, ok)
}

func TestPresenceSurvivesDisconnectUntilStale(t *testing.T) {
	h, clock := startHub(t, Options{})

	c1, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)
	c2, err := h.Register(principal("42", "Ada"), false)
	require.NoError(t, err)

	online := h.Online()
	require.Len(t, online, 1)
	assert.Equal(t, "42", online[0].PrincipalID)
	assert.Equal(t, StatusOnline, online[0].Status)

	c1.Close()
	c2.Close()

	// no eviction on disconnect; staleness is query-time only
	online = h.Online()
	require.Len(t, online, 1)
	assert.Equal(t, "42", online[0].PrincipalID)

	clock.advance(5*time.Minute + time.Second)
	assert.Empty(t, h.Online())
}

func TestTouchKeepsStatusOnBareHeartbeat(t *testing.T) {
	h, clock := startHub(t, Options{})

	p := principal("8", "Di")
	_, err := h.Register(p, false)
	require.NoError(t, err)

	h.Touch(p, "busy", "reviewing pitch")
	clock.advance(4 * time.Minute)
	h.Touch(p, "", "")

	online := h.Online()
	require.Len(t, online, 1)
	assert.Equal(t, StatusBusy, online[0].Status)
	assert.Equal(t, "reviewing pitch", online[0].Activity)

	// invalid status falls back to online rather than failing
	h.Touch(p, "sleeping", "")
	online = h.Online()
	require.Len(t, online, 1)
	assert.Equal(t, StatusOnline, online[0].Status)
}

func TestOfflineStatusHiddenFromOnlineList(t *testing.T) {
	h, _ := startHub(t, Options{})

	p := principal("8", "Di")
	_, err := h.Register(p, false)
	require.NoError(t, err)

	h.Touch(p, "offline", "")
	assert.Empty(t, h.Online())
}

func TestAnonymousConnectionsHaveNoPresenceOrUserChannel(t *testing.T) {
	h, _ := startHub(t, Options{})

	c, err := h.Register(session.Principal{ID: "anon:x", Role: "anonymous"}, true)
	require.NoError(t, err)

	assert.Empty(t, h.Online())
	assert.Equal(t, 0, h.Stats().Channels)

	c.Subscribe("system")
	res, err := h.Push("system", event.New("system_broadcast", json.RawMessage(`{"text":"maintenance"}`)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)
	assert.Equal(t, "system_broadcast", recvEnvelope(t, c).Type)
}

func TestPushAfterStopReturnsHubUnavailable(t *testing.T) {
	h := New(Options{QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := h.Push("42", event.New("chat_message", json.RawMessage(`{}`)))
	assert.ErrorIs(t, err, ErrHubUnavailable)

	_, err = h.Register(principal("42", "Ada"), false)
	assert.ErrorIs(t, err, ErrHubUnavailable)
}
