package client_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/client/clienttest"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

func balanceFake(v uint64, err error) *clienttest.FakeRPC {
	return &clienttest.FakeRPC{
		GetBalanceFn: func(ctx context.Context, _ solana.PublicKey) (uint64, error) {
			return v, err
		},
	}
}

func TestResolver_FallsBackInOrder(t *testing.T) {
	first := balanceFake(0, errors.New("503 service unavailable"))
	second := balanceFake(42, nil)
	third := balanceFake(7, nil)

	r := clienttest.NewResolver(t, client.Options{}, first, second, third)
	got, err := r.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 1, second.Calls())
	assert.Equal(t, 0, third.Calls(), "later endpoints are not contacted after a success")
}

func TestResolver_AllFail(t *testing.T) {
	last := errors.New("rpc error -32005: node is behind")
	a := balanceFake(0, errors.New("timeout"))
	b := balanceFake(0, last)

	r := clienttest.NewResolver(t, client.Options{
		Retry: retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(0)},
	}, a, b)

	_, err := r.GetBalance(context.Background(), solana.SystemProgramID)
	require.ErrorIs(t, err, model.ErrAllEndpointsFailed)
	require.ErrorIs(t, err, last)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 3, b.Calls())
}

func TestResolver_RetryRoundSucceeds(t *testing.T) {
	var n atomic.Int32
	flaky := &clienttest.FakeRPC{
		GetBalanceFn: func(ctx context.Context, _ solana.PublicKey) (uint64, error) {
			if n.Add(1) < 3 {
				return 0, errors.New("connection reset")
			}
			return 99, nil
		},
	}
	r := clienttest.NewResolver(t, client.Options{
		Retry: retry.Policy{MaxAttempts: 4, Backoff: retry.Constant(time.Millisecond)},
	}, flaky)

	got, err := r.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got)
	assert.Equal(t, 3, flaky.Calls())
}

func TestResolver_RaceFirstSuccessWins(t *testing.T) {
	slow := &clienttest.FakeRPC{
		GetBalanceFn: func(ctx context.Context, _ solana.PublicKey) (uint64, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return 1, nil
			}
		},
	}
	fast := balanceFake(2, nil)

	r := clienttest.NewResolver(t, client.Options{Race: true}, slow, fast)

	start := time.Now()
	got, err := r.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)
	assert.Less(t, time.Since(start), 2*time.Second, "slow leg must be cancelled, not awaited")
}

func TestResolver_RaceFailureFallsBackToOrdered(t *testing.T) {
	var calls atomic.Int32
	flaky := &clienttest.FakeRPC{
		GetBalanceFn: func(ctx context.Context, _ solana.PublicKey) (uint64, error) {
			if calls.Add(1) == 1 {
				return 0, errors.New("first call fails")
			}
			return 5, nil
		},
	}
	broken := balanceFake(0, errors.New("down"))

	r := clienttest.NewResolver(t, client.Options{Race: true}, flaky, broken)
	got, err := r.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)
}

func TestResolver_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := clienttest.NewResolver(t, client.Options{
		Retry: retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(time.Hour)},
	}, balanceFake(0, errors.New("down")))

	_, err := r.GetBalance(ctx, solana.SystemProgramID)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, model.ErrAllEndpointsFailed)
}

func TestWithFallback_Generic(t *testing.T) {
	r := clienttest.NewResolver(t, client.Options{}, &clienttest.FakeRPC{}, &clienttest.FakeRPC{})

	calls := 0
	got, err := client.WithFallback(context.Background(), r, "custom", func(ctx context.Context, c client.RPC) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("nope")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestNewResolver_Endpoints(t *testing.T) {
	r, err := client.NewResolver(client.Options{URLs: []string{" https://a.example ", "", "https://b.example"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, r.Endpoints())

	r, err = client.NewResolver(client.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{client.DefaultRPCURL}, r.Endpoints())
}
