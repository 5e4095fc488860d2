package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

// DefaultRPCURL is used when no endpoint is configured.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Endpoint is one JSON-RPC node.
type Endpoint struct {
	URL     string
	Client  RPC
	limiter *rate.Limiter
}

// NewEndpoint wraps c. A zero limit disables rate limiting.
func NewEndpoint(url string, c RPC, limit rate.Limit, burst int) Endpoint {
	ep := Endpoint{URL: url, Client: c}
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		ep.limiter = rate.NewLimiter(limit, burst)
	}
	return ep
}

func (e Endpoint) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// Options configures a Resolver.
type Options struct {
	URLs []string
	// Race calls every endpoint at once before falling back to ordered rounds.
	Race bool
	// Retry spaces the ordered rounds.
	Retry retry.Policy
	// RatePerSecond and Burst throttle each endpoint; zero disables.
	RatePerSecond float64
	Burst         int
	// Timeout bounds a single call against one endpoint.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// DefaultRetry is the fallback policy when Options.Retry is unset.
var DefaultRetry = retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(500 * time.Millisecond)}

// Resolver runs each RPC call against an ordered list of endpoints until one
// answers.
type Resolver struct {
	endpoints []Endpoint
	race      bool
	policy    retry.Policy
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewResolver builds a resolver with a solana-go rpc client per URL.
func NewResolver(opts Options) (*Resolver, error) {
	urls := opts.URLs
	if len(urls) == 0 {
		urls = []string{DefaultRPCURL}
	}

	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		endpoints = append(endpoints, NewEndpoint(u, rpc.New(u), rate.Limit(opts.RatePerSecond), opts.Burst))
	}
	return NewResolverWithEndpoints(endpoints, opts)
}

// NewResolverWithEndpoints builds a resolver over prepared endpoints.
// opts.URLs, RatePerSecond and Burst are ignored.
func NewResolverWithEndpoints(endpoints []Endpoint, opts Options) (*Resolver, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one rpc endpoint is required")
	}

	logger := log.WithComponent("rpc")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetry
	}

	return &Resolver{
		endpoints: endpoints,
		race:      opts.Race,
		policy:    policy,
		timeout:   opts.Timeout,
		logger:    logger,
	}, nil
}

// Endpoints returns the configured endpoint URLs in order.
func (r *Resolver) Endpoints() []string {
	out := make([]string, len(r.endpoints))
	for i, ep := range r.endpoints {
		out[i] = ep.URL
	}
	return out
}

func (r *Resolver) call(ctx context.Context, ep Endpoint, fn func(context.Context, RPC) error) error {
	if err := ep.wait(ctx); err != nil {
		return err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return fn(ctx, ep.Client)
}

// WithFallback runs fn against the resolver's endpoints.
//
// With racing enabled every endpoint is called at once and the first success
// wins; the rest are cancelled. If that fails (or racing is off) endpoints are
// tried strictly in order, one round per retry attempt. Only when every round
// fails is ErrAllEndpointsFailed returned, wrapping the last error. A done ctx
// is reported as ctx.Err().
func WithFallback[T any](ctx context.Context, r *Resolver, op string, fn func(ctx context.Context, c RPC) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if r.race && len(r.endpoints) > 1 {
		res, err := raceEndpoints(ctx, r, op, fn)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
	}

	var result T
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		for _, ep := range r.endpoints {
			var res T
			err := r.call(ctx, ep, func(ctx context.Context, c RPC) error {
				var err error
				res, err = fn(ctx, c)
				return err
			})
			if err == nil {
				result = res
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return retry.Permanent(ctxErr)
			}
			r.logger.Debug().Str("op", op).Str("endpoint", ep.URL).Int("round", attempt).Err(err).Msg("rpc call failed")
			lastErr = err
		}
		return lastErr
	})
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	r.logger.Warn().Str("op", op).Err(lastErr).Msg("all rpc endpoints failed")
	return zero, fmt.Errorf("%w: %s: %w", model.ErrAllEndpointsFailed, op, lastErr)
}

type raceResult[T any] struct {
	value T
	err   error
	url   string
}

func raceEndpoints[T any](ctx context.Context, r *Resolver, op string, fn func(ctx context.Context, c RPC) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult[T], len(r.endpoints))
	for _, ep := range r.endpoints {
		go func(ep Endpoint) {
			var res T
			err := r.call(ctx, ep, func(ctx context.Context, c RPC) error {
				var err error
				res, err = fn(ctx, c)
				return err
			})
			results <- raceResult[T]{value: res, err: err, url: ep.URL}
		}(ep)
	}

	var zero T
	var lastErr error
	for range r.endpoints {
		res := <-results
		if res.err == nil {
			return res.value, nil
		}
		r.logger.Debug().Str("op", op).Str("endpoint", res.url).Err(res.err).Msg("rpc race leg failed")
		lastErr = res.err
	}
	return zero, lastErr
}
