package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/wallet-core/internal/retry"
)

const (
	addrA = "HAgk14JpMQLgt6rVgv7cBQFJWFto5Dqxi472uT3DKpqk"
	addrB = "Hh8QwFUA6MtVu1qAoq12ucvFHNwCcVTV7hpWjeY1Hztb"
)

// fakeNode acknowledges every accountSubscribe with subscription id 100+id
// and then runs script on the connection.
type fakeNode struct {
	connections atomic.Int32
	script      func(n int, conn *websocket.Conn, subs map[string]uint64)
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := int(f.connections.Add(1))

	subs := map[string]uint64{}
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		addr, _ := req.Params[0].(string)
		subs[addr] = 100 + req.ID
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 100 + req.ID})
	}
	f.script(n, conn, subs)
}

func notify(conn *websocket.Conn, sub, slot, lamports uint64) {
	conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]any{
			"subscription": sub,
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value":   map[string]any{"lamports": lamports, "owner": "11111111111111111111111111111111"},
			},
		},
	})
}

func newTestWatcher(t *testing.T, node *fakeNode) *Watcher {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	nop := zerolog.Nop()
	w, err := NewWatcher(Config{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Reconnect: retry.Policy{Backoff: retry.Constant(10 * time.Millisecond)},
		Logger:    &nop,
	})
	require.NoError(t, err)
	return w
}

type collector struct {
	mu      sync.Mutex
	updates []Update
	got     chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 16)}
}

func (c *collector) handle(u Update) {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Update {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for update %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Update(nil), c.updates...)
}

func TestWatcher_DeliversUpdates(t *testing.T) {
	node := &fakeNode{script: func(_ int, conn *websocket.Conn, subs map[string]uint64) {
		notify(conn, subs[addrB], 7, 42)
		notify(conn, subs[addrA], 8, 1_500_000_000)
		notify(conn, 999, 9, 1) // unknown subscription is ignored
		time.Sleep(time.Second)
	}}
	w := newTestWatcher(t, node)
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx, func() []string { return []string{addrA, addrB} }, c.handle)
	}()

	got := c.wait(t, 2)
	assert.Equal(t, []Update{
		{Address: addrB, Lamports: 42, Slot: 7},
		{Address: addrA, Lamports: 1_500_000_000, Slot: 8},
	}, got)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcher_ReconnectsAfterDrop(t *testing.T) {
	node := &fakeNode{script: func(n int, conn *websocket.Conn, subs map[string]uint64) {
		if n == 1 {
			return // drop the first session right after subscribing
		}
		notify(conn, subs[addrA], 11, 5)
		time.Sleep(time.Second)
	}}
	w := newTestWatcher(t, node)
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() []string { return []string{addrA} }, c.handle)

	got := c.wait(t, 1)
	assert.Equal(t, Update{Address: addrA, Lamports: 5, Slot: 11}, got[0])
	assert.GreaterOrEqual(t, int(node.connections.Load()), 2)
}

func TestWatcher_ReloadResubscribes(t *testing.T) {
	var watched atomic.Value
	watched.Store([]string{addrA})

	node := &fakeNode{script: func(n int, conn *websocket.Conn, subs map[string]uint64) {
		if sub, ok := subs[addrB]; ok {
			notify(conn, sub, 20, 77)
		}
		time.Sleep(time.Second)
	}}
	w := newTestWatcher(t, node)
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() []string { return watched.Load().([]string) }, c.handle)

	require.Eventually(t, func() bool { return node.connections.Load() == 1 }, 3*time.Second, 5*time.Millisecond)
	watched.Store([]string{addrA, addrB})
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.conn != nil
	}, 3*time.Second, 5*time.Millisecond)
	w.Reload()

	got := c.wait(t, 1)
	assert.Equal(t, Update{Address: addrB, Lamports: 77, Slot: 20}, got[0])
}

func TestWatcher_GivesUp(t *testing.T) {
	nop := zerolog.Nop()
	w, err := NewWatcher(Config{
		URL:       "ws://127.0.0.1:1",
		Reconnect: retry.Policy{MaxAttempts: 2, Backoff: retry.Constant(time.Millisecond)},
		Logger:    &nop,
	})
	require.NoError(t, err)

	err = w.Run(context.Background(), func() []string { return []string{addrA} }, func(Update) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
}

func TestNewWatcher_RequiresURL(t *testing.T) {
	_, err := NewWatcher(Config{})
	require.Error(t, err)
}
