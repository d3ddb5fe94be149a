package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/internal/room"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, opts)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func joinRoom(t *testing.T, rm *room.Room, conn, key string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 16)
	reply := make(chan room.JoinResult, 1)
	rm.Inbox() <- room.Join{ConnID: conn, Request: types.Join{PlayerKey: key}, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		require.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
	}
	return out
}

func waitPhase(t *testing.T, out <-chan types.ServerMessage, phase string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-out:
			require.True(t, ok, "outbox closed")
			if msg.Type == types.TypeRoomState && msg.State.Phase == phase {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %q", phase)
		}
	}
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	rm1, err := h.Ensure(ctx, "zed123")
	require.NoError(t, err)
	require.NotNil(t, rm1)
	assert.Equal(t, "ZED123", rm1.Code())

	rm2, err := h.Get(ctx, " ZED123 ")
	require.NoError(t, err)
	assert.Same(t, rm1, rm2)

	rm3, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	assert.Same(t, rm1, rm3)

	missing, err := h.Get(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHub_EnsureWithoutCodeSkipsCollisions(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	orig := generateCode
	generateCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	t.Cleanup(func() { generateCode = orig })

	h := newTestHub(t, Options{})
	ctx := context.Background()

	first, err := h.Ensure(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code())

	second, err := h.Ensure(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.Code())

	list, err := h.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAA", "BBBBBB"}, list)
}

func TestGenerateCode_Charset(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-HJ-NP-Z2-9]{6}$`, c)
	}
}

func TestHub_RemovesRoomOnceEmpty(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	rm, err := h.Ensure(ctx, "EMPTY1")
	require.NoError(t, err)
	joinRoom(t, rm, "c1", "a")
	rm.Inbox() <- room.Leave{ConnID: "c1"}

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("room was not shut down")
	}
	got, err := h.Get(ctx, "EMPTY1")
	require.NoError(t, err)
	assert.Nil(t, got)

	fresh, err := h.Ensure(ctx, "EMPTY1")
	require.NoError(t, err)
	assert.NotSame(t, rm, fresh)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestHub_SweepPromotesCountdown(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	h := newTestHub(t, Options{
		SweepInterval: 10 * time.Millisecond,
		Room: room.Options{
			Rules: engine.Rules{CountdownMs: 60_000, GraceMs: 60_000},
			Now:   clock.Now,
		},
	})

	rm, err := h.Ensure(context.Background(), "SWEEP1")
	require.NoError(t, err)
	out := joinRoom(t, rm, "c1", "a")
	rm.Inbox() <- room.FromClient{ConnID: "c1", Cmd: engine.Command{Type: engine.CmdStart}}
	waitPhase(t, out, "countdown", time.Second)

	clock.Advance(61 * time.Second)
	waitPhase(t, out, "running", time.Second)
}

func TestHub_ShutdownStopsRooms(t *testing.T) {
	h := NewHub(context.Background(), Options{})
	ctx := context.Background()

	rm, err := h.Ensure(ctx, "BYE001")
	require.NoError(t, err)
	out := joinRoom(t, rm, "c1", "a")

	h.Inbox() <- ShutdownHub{}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not stop")
	}
	for range out {
		// drain until the room closes the outbox
	}

	_, err = h.Ensure(ctx, "BYE002")
	assert.ErrorIs(t, err, ErrHubClosed)
}
