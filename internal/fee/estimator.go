// Package fee estimates a competitive priority fee from recent network samples.
package fee

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

const (
	// BaseFeeLamports is the per-signature network fee.
	BaseFeeLamports uint64 = 5000

	// DefaultPriorityFee is used when the network cannot be sampled.
	DefaultPriorityFee uint64 = 1000

	highCongestionP75   uint64 = 50_000
	mediumCongestionP50 uint64 = 10_000

	DefaultCacheTTL = 10 * time.Second
)

var etaByCongestion = map[model.Congestion]string{
	model.CongestionLow:    "3-8s",
	model.CongestionMedium: "5-15s",
	model.CongestionHigh:   "10-20s",
}

// Config configures an Estimator.
type Config struct {
	// CacheTTL is how long a sampled quote is reused. Zero means DefaultCacheTTL,
	// a negative value disables caching.
	CacheTTL time.Duration
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Estimator produces FeeQuotes.
type Estimator struct {
	rpc    *client.Resolver
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.Mutex
	cached *model.FeeQuote
}

// NewEstimator creates an Estimator.
func NewEstimator(resolver *client.Resolver, cfg Config) *Estimator {
	e := &Estimator{
		rpc:    resolver,
		ttl:    cfg.CacheTTL,
		now:    cfg.Now,
		logger: log.WithComponent("fee"),
	}
	if e.ttl == 0 {
		e.ttl = DefaultCacheTTL
	}
	if e.now == nil {
		e.now = time.Now
	}
	if cfg.Logger != nil {
		e.logger = *cfg.Logger
	}
	return e
}

// GetOptimalFee returns the current quote. It never fails: when sampling is
// impossible the conservative default quote is returned.
func (e *Estimator) GetOptimalFee(ctx context.Context) model.FeeQuote {
	now := e.now()

	e.mu.Lock()
	if e.cached != nil && e.ttl > 0 && now.Sub(e.cached.Timestamp) < e.ttl {
		q := *e.cached
		e.mu.Unlock()
		return q
	}
	e.mu.Unlock()

	samples, err := e.rpc.RecentPrioritizationFees(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("priority fee sampling failed, using default quote")
		return DefaultQuote(now)
	}

	fees := make([]uint64, 0, len(samples))
	for _, s := range samples {
		fees = append(fees, s.PrioritizationFee)
	}
	q := QuoteFromSamples(fees, now)

	e.mu.Lock()
	e.cached = &q
	e.mu.Unlock()
	return q
}

// Invalidate drops the cached quote.
func (e *Estimator) Invalidate() {
	e.mu.Lock()
	e.cached = nil
	e.mu.Unlock()
}

// DefaultQuote is the quote used when the network is unreachable.
func DefaultQuote(now time.Time) model.FeeQuote {
	return newQuote(DefaultPriorityFee, model.CongestionLow, now)
}

// QuoteFromSamples derives a quote from raw priority fee samples: p50 is the
// recommended priority fee, p75 and p50 classify congestion.
func QuoteFromSamples(samples []uint64, now time.Time) model.FeeQuote {
	if len(samples) == 0 {
		return newQuote(0, model.CongestionLow, now)
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	p50 := Percentile(sorted, 50)
	p75 := Percentile(sorted, 75)

	congestion := model.CongestionLow
	switch {
	case p75 > highCongestionP75:
		congestion = model.CongestionHigh
	case p50 > mediumCongestionP50:
		congestion = model.CongestionMedium
	}
	return newQuote(p50, congestion, now)
}

func newQuote(priority uint64, c model.Congestion, now time.Time) model.FeeQuote {
	total := BaseFeeLamports + priority
	if total < priority {
		total = math.MaxUint64
	}
	return model.FeeQuote{
		BaseFee:     BaseFeeLamports,
		PriorityFee: priority,
		TotalFee:    total,
		Congestion:  c,
		ETA:         etaByCongestion[c],
		Timestamp:   now,
	}
}

// Percentile returns the nearest-rank p-th percentile of an ascending sample.
func Percentile(sorted []uint64, p float64) uint64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
