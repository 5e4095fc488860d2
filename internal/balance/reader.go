// Package balance reads SOL balances and parsed transaction history.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 1000

	defaultFetchConcurrency = 8
)

// Reader fetches balances and history through the endpoint resolver.
type Reader struct {
	rpc         *client.Resolver
	logger      zerolog.Logger
	concurrency int
}

// Option customises a Reader.
type Option func(*Reader)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithConcurrency bounds parallel transaction fetches in GetHistory.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewReader creates a Reader.
func NewReader(resolver *client.Resolver, opts ...Option) *Reader {
	r := &Reader{
		rpc:         resolver,
		logger:      log.WithComponent("balance"),
		concurrency: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func parseAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: invalid Solana address: %w", model.ErrInvalidRequest, err)
	}
	return pk, nil
}

// GetBalance returns the balance in lamports, or 0 when every endpoint
// failed. Use GetBalanceStrict where a failure must not read as empty.
func (r *Reader) GetBalance(ctx context.Context, address string) uint64 {
	v, err := r.GetBalanceStrict(ctx, address)
	if err != nil {
		r.logger.Warn().Str("address", address).Err(err).Msg("balance unavailable, reporting 0")
		return 0
	}
	return v
}

// GetBalanceStrict returns the balance in lamports or the failure.
func (r *Reader) GetBalanceStrict(ctx context.Context, address string) (uint64, error) {
	pk, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	v, err := r.rpc.GetBalance(ctx, pk)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	return v, nil
}

// GetHistory returns up to limit parsed transfers touching address, newest
// first. Transactions that fail to fetch or parse are skipped.
func (r *Reader) GetHistory(ctx context.Context, address string, limit int) ([]model.TransactionRecord, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	sigs, err := r.rpc.SignaturesForAddress(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	rows := make([]*model.TransactionRecord, len(sigs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, entry := range sigs {
		if entry == nil {
			continue
		}
		g.Go(func() error {
			res, err := r.rpc.Transaction(ctx, entry.Signature)
			if err != nil {
				r.logger.Warn().Str("signature", entry.Signature.String()).Err(err).Msg("skipping transaction")
				return nil
			}
			view, err := viewFromResult(entry, res)
			if err != nil {
				r.logger.Warn().Str("signature", entry.Signature.String()).Err(err).Msg("skipping undecodable transaction")
				return nil
			}
			if rec, ok := parseView(owner, view); ok {
				rows[i] = &rec
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

// rawInstruction is a compiled instruction with its accounts resolved.
type rawInstruction struct {
	Program  solana.PublicKey
	Accounts []solana.PublicKey
	Data     []byte
}

// txView is the part of a confirmed transaction history parsing needs.
type txView struct {
	Signature    solana.Signature
	Slot         uint64
	BlockTime    time.Time
	Failed       bool
	Fee          uint64
	AccountKeys  []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
	Logs         []string
	Instructions []rawInstruction
}

func viewFromResult(entry *rpc.TransactionSignature, res *rpc.GetTransactionResult) (*txView, error) {
	if res == nil || res.Transaction == nil || res.Meta == nil {
		return nil, fmt.Errorf("transaction body or meta missing")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("empty transaction")
	}

	// static keys first, then keys loaded from lookup tables
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	view := &txView{
		Signature:    entry.Signature,
		Slot:         res.Slot,
		Failed:       res.Meta.Err != nil,
		Fee:          res.Meta.Fee,
		AccountKeys:  keys,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
		Logs:         res.Meta.LogMessages,
	}
	// no block time leaves the zero time
	switch {
	case res.BlockTime != nil:
		view.BlockTime = res.BlockTime.Time()
	case entry.BlockTime != nil:
		view.BlockTime = entry.BlockTime.Time()
	}

	for _, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("program index %d out of range", ci.ProgramIDIndex)
		}
		ix := rawInstruction{Program: keys[ci.ProgramIDIndex], Data: ci.Data}
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("account index %d out of range", idx)
			}
			ix.Accounts = append(ix.Accounts, keys[idx])
		}
		view.Instructions = append(view.Instructions, ix)
	}
	return view, nil
}
