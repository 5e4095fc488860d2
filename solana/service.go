// Package solana is the use-case layer behind the HTTP handlers. It ties the
// wallet registry to balance reads, history, fee quotes and sends.
package solana

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/balance"
	"github.com/AlexZinkM/wallet-core/internal/fee"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/pipeline"
	"github.com/AlexZinkM/wallet-core/internal/registry"
	"github.com/AlexZinkM/wallet-core/internal/stream"
)

// Deps are the collaborators of a Service. Watcher is optional.
type Deps struct {
	Registry    *registry.Registry
	Reader      *balance.Reader
	Fees        *fee.Estimator
	Pipeline    *pipeline.Pipeline
	Watcher     *stream.Watcher
	PayCooldown time.Duration
	Logger      *zerolog.Logger
	Now         func() time.Time
}

// Service exposes wallet operations.
type Service struct {
	registry *registry.Registry
	reader   *balance.Reader
	fees     *fee.Estimator
	pipeline *pipeline.Pipeline
	watcher  *stream.Watcher
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	payMu   sync.Mutex
	lastPay time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		registry: d.Registry,
		reader:   d.Reader,
		fees:     d.Fees,
		pipeline: d.Pipeline,
		watcher:  d.Watcher,
		cooldown: d.PayCooldown,
		logger:   log.WithComponent("service"),
		now:      d.Now,
	}
	if d.Logger != nil {
		s.logger = *d.Logger
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// wallet resolves id, or the selected wallet when id is empty.
func (s *Service) wallet(id string) (registry.Record, error) {
	if id == "" {
		rec, ok := s.registry.Selected()
		if !ok {
			return registry.Record{}, fmt.Errorf("%w: no wallet selected", model.ErrWalletNotFound)
		}
		return rec, nil
	}
	return s.registry.Get(id)
}

// walletSetChanged resubscribes the balance stream.
func (s *Service) walletSetChanged() {
	if s.watcher != nil {
		s.watcher.Reload()
	}
}

// WatchBalances applies pushed balances to the registry until ctx is done.
// Without a watcher it returns immediately.
func (s *Service) WatchBalances(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	addresses := func() []string {
		snap := s.registry.Snapshot()
		out := make([]string, 0, len(snap.Wallets))
		for _, r := range snap.Wallets {
			out = append(out, r.Address())
		}
		return out
	}
	return s.watcher.Run(ctx, addresses, func(u stream.Update) {
		if s.registry.ApplyBalance(u.Address, u.Lamports) {
			s.logger.Debug().Str("address", u.Address).Uint64("lamports", u.Lamports).Uint64("slot", u.Slot).Msg("balance pushed")
		}
	})
}
