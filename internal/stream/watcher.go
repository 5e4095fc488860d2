// Package stream pushes balance changes of watched accounts over a Solana
// websocket subscription.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

const (
	DefaultWSURL            = "wss://api.mainnet-beta.solana.com"
	defaultHandshakeTimeout = 10 * time.Second
)

// DefaultReconnect retries forever, backing off from 1s to 1m.
var DefaultReconnect = retry.Policy{Backoff: retry.Exponential(time.Second, time.Minute)}

// Update is one pushed balance.
type Update struct {
	Address  string
	Lamports uint64
	Slot     uint64
}

// Handler receives updates on the watcher goroutine.
type Handler func(Update)

// AddressSource returns the accounts to watch. It is called on every
// (re)connect.
type AddressSource func() []string

// Config configures a Watcher.
type Config struct {
	URL string
	// Reconnect spaces consecutive failed sessions. MaxAttempts of 0 retries
	// until ctx is done.
	Reconnect        retry.Policy
	HandshakeTimeout time.Duration
	Logger           *zerolog.Logger
}

// Watcher keeps one websocket session open and resubscribes after drops.
type Watcher struct {
	url       string
	reconnect retry.Policy
	dialer    websocket.Dialer
	logger    zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	reloading bool
}

// NewWatcher creates a Watcher.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	if cfg.Reconnect.Backoff == nil {
		cfg.Reconnect = DefaultReconnect
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	w := &Watcher{
		url:       cfg.URL,
		reconnect: cfg.Reconnect,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: log.WithComponent("stream"),
	}
	if cfg.Logger != nil {
		w.logger = *cfg.Logger
	}
	return w, nil
}

// Reload drops the current session so the next one subscribes to a fresh
// address list. It is a no-op when no session is open.
func (w *Watcher) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return
	}
	w.reloading = true
	_ = w.conn.Close()
}

// Run watches until ctx is done or the reconnect policy gives up.
func (w *Watcher) Run(ctx context.Context, addresses AddressSource, handle Handler) error {
	failures := 0
	for {
		subscribed, err := w.session(ctx, addresses(), handle)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if w.takeReload() {
			w.logger.Debug().Msg("resubscribing with new address list")
			failures = 0
			continue
		}
		if subscribed {
			failures = 0
		}
		failures++
		if w.reconnect.MaxAttempts > 0 && failures >= w.reconnect.MaxAttempts {
			return fmt.Errorf("websocket gave up after %d attempts: %w", failures, err)
		}
		delay := w.reconnect.Delay(failures)
		w.logger.Warn().Err(err).Dur("retry_in", delay).Msg("websocket session ended")
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (w *Watcher) takeReload() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.reloading
	w.reloading = false
	return r
}

func (w *Watcher) setConn(c *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = c
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type message struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value *struct {
				Lamports uint64 `json:"lamports"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// session runs one connection. subscribed reports whether at least one
// subscription was acknowledged.
func (w *Watcher) session(ctx context.Context, addresses []string, handle Handler) (subscribed bool, err error) {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s: %w", w.url, err)
	}
	w.setConn(conn)
	defer func() {
		w.setConn(nil)
		_ = conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	pending := make(map[uint64]string, len(addresses))
	for i, addr := range addresses {
		id := uint64(i + 1)
		req := subscribeRequest{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "accountSubscribe",
			Params:  []any{addr, map[string]string{"encoding": "base64", "commitment": "confirmed"}},
		}
		if err := conn.WriteJSON(req); err != nil {
			return false, fmt.Errorf("failed to subscribe %s: %w", addr, err)
		}
		pending[id] = addr
	}

	subs := make(map[uint64]string, len(addresses))
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return subscribed, fmt.Errorf("failed to read: %w", err)
		}

		switch {
		case msg.ID != nil:
			addr, ok := pending[*msg.ID]
			if !ok {
				continue
			}
			delete(pending, *msg.ID)
			if msg.Error != nil {
				w.logger.Warn().Str("address", addr).Err(msg.Error).Msg("subscription rejected")
				continue
			}
			var subID uint64
			if err := json.Unmarshal(msg.Result, &subID); err != nil {
				return subscribed, fmt.Errorf("bad subscription id for %s: %w", addr, err)
			}
			subs[subID] = addr
			subscribed = true

		case msg.Method == "accountNotification" && msg.Params != nil:
			addr, ok := subs[msg.Params.Subscription]
			if !ok {
				continue
			}
			u := Update{Address: addr, Slot: msg.Params.Result.Context.Slot}
			if v := msg.Params.Result.Value; v != nil {
				u.Lamports = v.Lamports
			}
			handle(u)
		}
	}
}
