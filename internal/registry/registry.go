// Package registry owns the set of wallets, the current selection and their
// persistence through a vault.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/vault"
)

const defaultRefreshConcurrency = 4

// BalanceFetcher is the strict balance read used by RefreshBalances.
type BalanceFetcher interface {
	GetBalanceStrict(ctx context.Context, address string) (uint64, error)
}

// Registry is safe for concurrent use. Mutations are serialised and persisted
// before they become visible.
type Registry struct {
	vault    vault.Vault
	balances BalanceFetcher
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	workers  int

	mu     sync.RWMutex
	state  *Snapshot
	loaded bool
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides uuid.NewString.
func WithIDGenerator(f func() string) Option {
	return func(r *Registry) { r.newID = f }
}

// WithRefreshConcurrency bounds parallel balance fetches.
func WithRefreshConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New creates an empty registry backed by v. Call Load to read the vault.
func New(v vault.Vault, balances BalanceFetcher, opts ...Option) *Registry {
	r := &Registry{
		vault:    v,
		balances: balances,
		logger:   log.WithComponent("registry"),
		now:      time.Now,
		newID:    uuid.NewString,
		workers:  defaultRefreshConcurrency,
		state:    &Snapshot{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.state.clone()
}

// Selected returns the selected record, if any.
func (r *Registry) Selected() (Record, bool) {
	return r.Snapshot().Selected()
}

// Get returns the record with id or ErrWalletNotFound.
func (r *Registry) Get(id string) (Record, error) {
	rec, ok := r.Snapshot().Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
	}
	return rec, nil
}

// FindByAddress returns the record owning address.
func (r *Registry) FindByAddress(address string) (Record, bool) {
	return r.Snapshot().FindByAddress(address)
}

// Load replaces the in-memory state with the vault contents. A legacy
// single-wallet blob is migrated and written back.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	if !r.vault.IsAvailable(ctx) {
		return model.ErrStorageUnavailable
	}
	data, err := r.vault.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallets: %w", err)
	}
	defer clear(data)

	if len(data) == 0 {
		r.state = &Snapshot{}
		r.loaded = true
		return nil
	}

	res, err := decodeState(data, r.newID, r.now())
	if err != nil {
		return err
	}
	for _, addr := range res.dropped {
		r.logger.Warn().Str("address", addr).Msg("dropping stored wallet that failed the integrity check")
	}
	repaired := repairSelection(res.state)
	if repaired {
		r.logger.Warn().Msg("stored selection pointed at a missing wallet, reselected")
	}

	if res.migrated {
		r.logger.Info().Msg("migrating legacy single-wallet vault")
		if err := r.persist(ctx, res.state); err != nil {
			r.logger.Warn().Err(err).Msg("failed to write migrated wallets, keeping them in memory")
		}
	}

	r.state = res.state
	r.loaded = true
	r.logger.Debug().Int("wallets", len(r.state.Wallets)).Msg("wallets loaded")
	return nil
}

// repairSelection points SelectedID at an existing record. It reports
// whether anything changed.
func repairSelection(s *Snapshot) bool {
	if len(s.Wallets) == 0 {
		changed := s.SelectedID != ""
		s.SelectedID = ""
		return changed
	}
	if s.index(s.SelectedID) >= 0 {
		return false
	}
	s.SelectedID = s.Wallets[0].ID
	return true
}

func (r *Registry) persist(ctx context.Context, s *Snapshot) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}
	defer clear(data)
	return r.vault.Store(ctx, data)
}

// mutate runs build on a copy of the state, persists the copy and only then
// makes it current. The writer lock is held throughout.
func (r *Registry) mutate(ctx context.Context, build func(next *Snapshot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.vault.IsAvailable(ctx) {
		return model.ErrStorageUnavailable
	}
	if !r.loaded {
		if err := r.loadLocked(ctx); err != nil {
			return err
		}
	}

	next := r.state.clone()
	if err := build(next); err != nil {
		return err
	}
	if err := r.persist(ctx, next); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistFailed, err)
	}
	r.state = next
	return nil
}

func (r *Registry) nextName(s *Snapshot) string {
	for n := len(s.Wallets) + 1; ; n++ {
		if name := autoName(n); !s.nameTaken(name, "") {
			return name
		}
	}
}

func (r *Registry) claimName(s *Snapshot, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return r.nextName(s), nil
	}
	if s.nameTaken(name, "") {
		return "", fmt.Errorf("%w: %q", model.ErrNameTaken, name)
	}
	return name, nil
}

func (r *Registry) add(next *Snapshot, rec Record) error {
	if next.hasAddress(rec.Address()) {
		return fmt.Errorf("%w: %s", model.ErrDuplicateWallet, rec.Address())
	}
	next.Wallets = append(next.Wallets, rec)
	next.SelectedID = rec.ID
	return nil
}

// Create generates a fresh keypair, stores it and selects it.
func (r *Registry) Create(ctx context.Context, name string) (Record, error) {
	km, err := keys.Generate()
	if err != nil {
		return Record{}, err
	}
	return r.insert(ctx, km, name, nil)
}

// CreateFromPhrase stores index 0 of phrase and selects it.
func (r *Registry) CreateFromPhrase(ctx context.Context, phrase, name string) (Record, error) {
	km, err := keys.DeriveFromPhrase(phrase, 0)
	if err != nil {
		return Record{}, err
	}
	return r.insert(ctx, km, name, &Origin{PhraseFingerprint: keys.Fingerprint(phrase)})
}

// ImportFromSecret stores a raw 64-byte secret key and selects it.
func (r *Registry) ImportFromSecret(ctx context.Context, secret, name string) (Record, error) {
	km, err := keys.DeriveFromRawSecret(secret)
	if err != nil {
		return Record{}, err
	}
	return r.insert(ctx, km, name, nil)
}

func (r *Registry) insert(ctx context.Context, km *keys.KeyMaterial, name string, origin *Origin) (Record, error) {
	var rec Record
	err := r.mutate(ctx, func(next *Snapshot) error {
		claimed, err := r.claimName(next, name)
		if err != nil {
			return err
		}
		rec = Record{
			ID:        r.newID(),
			Name:      claimed,
			Key:       km,
			CreatedAt: r.now().UTC(),
			Origin:    origin,
		}
		return r.add(next, rec)
	})
	if err != nil {
		return Record{}, err
	}
	r.logger.Info().Str("id", rec.ID).Str("address", rec.Address()).Msg("wallet added")
	return rec, nil
}

// ImportFromPhrase derives count addresses from phrase, stores the ones not
// already present and selects the first new one. A count of 0 means
// keys.DefaultImportCount.
func (r *Registry) ImportFromPhrase(ctx context.Context, phrase, name string, count int) ([]Record, error) {
	if count == 0 {
		count = keys.DefaultImportCount
	}
	derived, err := keys.DeriveMany(phrase, count)
	if err != nil {
		return nil, err
	}
	fingerprint := keys.Fingerprint(phrase)
	base := strings.TrimSpace(name)

	var added []Record
	err = r.mutate(ctx, func(next *Snapshot) error {
		added = added[:0]
		for i, km := range derived {
			if next.hasAddress(km.Address()) {
				continue
			}
			rec := Record{
				ID:           r.newID(),
				Key:          km,
				CreatedAt:    r.now().UTC(),
				Origin:       &Origin{PhraseFingerprint: fingerprint, DerivationIndex: uint32(i)},
				MultiAddress: count > 1,
			}
			switch {
			case base == "":
				rec.Name = r.nextName(next)
			case count == 1:
				rec.Name = base
			default:
				rec.Name = fmt.Sprintf("%s #%d", base, i+1)
			}
			if next.nameTaken(rec.Name, "") {
				return fmt.Errorf("%w: %q", model.ErrNameTaken, rec.Name)
			}
			next.Wallets = append(next.Wallets, rec)
			added = append(added, rec)
		}
		if len(added) == 0 {
			return model.ErrAllDuplicates
		}
		next.SelectedID = added[0].ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info().Int("added", len(added)).Int("derived", count).Msg("phrase imported")
	return added, nil
}

// Rename changes the display name of id.
func (r *Registry) Rename(ctx context.Context, id, name string) (Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, model.InvalidRequestf("name must not be empty")
	}
	var rec Record
	err := r.mutate(ctx, func(next *Snapshot) error {
		i := next.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
		}
		if next.nameTaken(name, id) {
			return fmt.Errorf("%w: %q", model.ErrNameTaken, name)
		}
		next.Wallets[i].Name = name
		rec = next.Wallets[i]
		return nil
	})
	return rec, err
}

// Delete removes id. Deleting the selected wallet selects the first remaining
// one.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, func(next *Snapshot) error {
		i := next.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
		}
		next.Wallets = append(next.Wallets[:i:i], next.Wallets[i+1:]...)
		if next.SelectedID == id {
			next.SelectedID = ""
		}
		repairSelection(next)
		return nil
	})
}

// Select makes id the current wallet.
func (r *Registry) Select(ctx context.Context, id string) error {
	return r.mutate(ctx, func(next *Snapshot) error {
		if next.index(id) < 0 {
			return fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
		}
		next.SelectedID = id
		return nil
	})
}

// RefreshBalances fetches every balance concurrently. Records whose fetch
// failed keep their previous balance. New balances apply in memory even when
// the vault cannot store them. The number of refreshed records is returned.
func (r *Registry) RefreshBalances(ctx context.Context) (int, error) {
	if r.balances == nil {
		return 0, fmt.Errorf("no balance source configured")
	}
	current := r.Snapshot()
	fetched := make([]*uint64, len(current.Wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, rec := range current.Wallets {
		g.Go(func() error {
			v, err := r.balances.GetBalanceStrict(gctx, rec.Address())
			if err != nil {
				r.logger.Warn().Str("address", rec.Address()).Err(err).Msg("balance refresh failed")
				return nil
			}
			fetched[i] = &v
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	updates := make(map[string]uint64, len(fetched))
	for i, v := range fetched {
		if v != nil {
			updates[current.Wallets[i].ID] = *v
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.state.clone()
	for i := range next.Wallets {
		if v, ok := updates[next.Wallets[i].ID]; ok {
			next.Wallets[i].BalanceLamports = v
		}
	}
	r.state = next

	// balances are a cache; a vault that cannot take them is not fatal
	switch {
	case !r.loaded:
	case !r.vault.IsAvailable(ctx):
		r.logger.Warn().Err(model.ErrStorageUnavailable).Msg("refreshed balances not persisted")
	default:
		if err := r.persist(ctx, next); err != nil {
			r.logger.Warn().Err(err).Msg("refreshed balances not persisted")
		}
	}
	return len(updates), nil
}

// ApplyBalance records a pushed balance in memory only. It reports whether a
// wallet owns address.
func (r *Registry) ApplyBalance(address string, lamports uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.state.Wallets {
		if r.state.Wallets[i].Address() == address {
			next := r.state.clone()
			next.Wallets[i].BalanceLamports = lamports
			r.state = next
			return true
		}
	}
	return false
}

// CopyTo writes the current state into dst.
func (r *Registry) CopyTo(ctx context.Context, dst vault.Vault) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !dst.IsAvailable(ctx) {
		return model.ErrStorageUnavailable
	}
	data, err := encodeState(r.state)
	if err != nil {
		return err
	}
	defer clear(data)
	if err := dst.Store(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistFailed, err)
	}
	return nil
}
