// Package vault stores the wallet set as one opaque blob in secure storage.
package vault

import (
	"context"
	"errors"
	"sync"
)

// Vault is a single-blob secure store.
type Vault interface {
	// IsAvailable reports whether the backend can be used right now.
	IsAvailable(ctx context.Context) bool
	// Store replaces the stored blob.
	Store(ctx context.Context, data []byte) error
	// Load returns the stored blob, or nil when nothing is stored.
	Load(ctx context.Context) ([]byte, error)
	// Remove deletes the stored blob.
	Remove(ctx context.Context) error
}

// ErrAuthenticationFailed is returned by a Gated vault when the user does not
// pass the gate.
var ErrAuthenticationFailed = errors.New("vault authentication failed")

// Authenticator is an optional user-presence gate (biometrics, PIN, ...).
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, reason string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

type gated struct {
	Vault
	auth Authenticator
}

// Gated requires auth before every read and write of v.
func Gated(v Vault, auth Authenticator) Vault {
	if auth == nil {
		return v
	}
	return &gated{Vault: v, auth: auth}
}

func (g *gated) check(ctx context.Context, reason string) error {
	if err := g.auth.Authenticate(ctx, reason); err != nil {
		return errors.Join(ErrAuthenticationFailed, err)
	}
	return nil
}

func (g *gated) Store(ctx context.Context, data []byte) error {
	if err := g.check(ctx, "save wallets"); err != nil {
		return err
	}
	return g.Vault.Store(ctx, data)
}

func (g *gated) Load(ctx context.Context) ([]byte, error) {
	if err := g.check(ctx, "unlock wallets"); err != nil {
		return nil, err
	}
	return g.Vault.Load(ctx)
}

func (g *gated) Remove(ctx context.Context) error {
	if err := g.check(ctx, "remove wallets"); err != nil {
		return err
	}
	return g.Vault.Remove(ctx)
}

// MemoryVault keeps the blob in memory. The zero value is ready to use and
// available.
type MemoryVault struct {
	mu          sync.Mutex
	data        []byte
	unavailable bool
	failStore   error
	stores      int
}

// NewMemoryVault creates an available, empty MemoryVault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{}
}

// SetAvailable toggles IsAvailable.
func (m *MemoryVault) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = !ok
}

// FailStores makes every Store return err until called with nil.
func (m *MemoryVault) FailStores(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStore = err
}

// Stores returns how many Store calls succeeded.
func (m *MemoryVault) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}

func (m *MemoryVault) IsAvailable(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

func (m *MemoryVault) Store(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStore != nil {
		return m.failStore
	}
	clear(m.data)
	m.data = append([]byte(nil), data...)
	m.stores++
	return nil
}

func (m *MemoryVault) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryVault) Remove(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.data)
	m.data = nil
	return nil
}
