// Package clienttest provides an in-memory client.RPC for tests.
package clienttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

// ErrNotStubbed is returned by methods without a stub.
var ErrNotStubbed = errors.New("clienttest: method not stubbed")

// FakeRPC dispatches each call to the matching func field and counts calls.
type FakeRPC struct {
	GetBalanceFn                  func(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetLatestBlockhashFn          func(ctx context.Context) (solana.Hash, error)
	SendTransactionFn             func(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatusesFn        func(ctx context.Context, sigs ...solana.Signature) ([]*rpc.SignatureStatusesResult, error)
	GetSignaturesForAddressFn     func(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransactionFn              func(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
	GetRecentPrioritizationFeesFn func(ctx context.Context) ([]rpc.PriorizationFeeResult, error)

	calls atomic.Int64

	mu   sync.Mutex
	sent []*solana.Transaction
}

// Calls returns how many RPC methods were invoked.
func (f *FakeRPC) Calls() int {
	return int(f.calls.Load())
}

// Sent returns the transactions passed to SendTransactionWithOpts.
func (f *FakeRPC) Sent() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*solana.Transaction, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	f.calls.Add(1)
	if f.GetBalanceFn == nil {
		return nil, ErrNotStubbed
	}
	v, err := f.GetBalanceFn(ctx, account)
	if err != nil {
		return nil, err
	}
	return &rpc.GetBalanceResult{Value: v}, nil
}

func (f *FakeRPC) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.calls.Add(1)
	if f.GetLatestBlockhashFn == nil {
		return nil, ErrNotStubbed
	}
	h, err := f.GetLatestBlockhashFn(ctx)
	if err != nil {
		return nil, err
	}
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: h}}, nil
}

func (f *FakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	if f.SendTransactionFn == nil {
		return solana.Signature{}, ErrNotStubbed
	}
	return f.SendTransactionFn(ctx, tx)
}

func (f *FakeRPC) GetSignatureStatuses(ctx context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.calls.Add(1)
	if f.GetSignatureStatusesFn == nil {
		return nil, ErrNotStubbed
	}
	v, err := f.GetSignatureStatusesFn(ctx, sigs...)
	if err != nil {
		return nil, err
	}
	return &rpc.GetSignatureStatusesResult{Value: v}, nil
}

func (f *FakeRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	f.calls.Add(1)
	if f.GetSignaturesForAddressFn == nil {
		return nil, ErrNotStubbed
	}
	return f.GetSignaturesForAddressFn(ctx, account, opts)
}

func (f *FakeRPC) GetTransaction(ctx context.Context, sig solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.calls.Add(1)
	if f.GetTransactionFn == nil {
		return nil, ErrNotStubbed
	}
	return f.GetTransactionFn(ctx, sig)
}

func (f *FakeRPC) GetRecentPrioritizationFees(ctx context.Context, _ solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
	f.calls.Add(1)
	if f.GetRecentPrioritizationFeesFn == nil {
		return nil, ErrNotStubbed
	}
	return f.GetRecentPrioritizationFeesFn(ctx)
}

// Confirmed returns a successful status at the confirmed level.
func Confirmed(slot uint64) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: slot, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
}

// NewResolver builds a resolver over fakes, in order. Unset retry settings
// default to a single round with no backoff and logging is discarded.
func NewResolver(t testing.TB, opts client.Options, fakes ...*FakeRPC) *client.Resolver {
	t.Helper()
	endpoints := make([]client.Endpoint, len(fakes))
	for i, f := range fakes {
		endpoints[i] = client.NewEndpoint(fmt.Sprintf("fake-%d", i), f, 0, 0)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Once
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	r, err := client.NewResolverWithEndpoints(endpoints, opts)
	if err != nil {
		t.Fatalf("NewResolverWithEndpoints() error: %v", err)
	}
	return r
}
