package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// maxSupportedTxVersion is hardcoded: new versions need a library update anyway.
var maxSupportedTxVersion uint64 = 0

// GetBalance returns the lamport balance of account.
func (r *Resolver) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return WithFallback(ctx, r, "getBalance", func(ctx context.Context, c RPC) (uint64, error) {
		res, err := c.GetBalance(ctx, account, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, err
		}
		if res == nil {
			return 0, fmt.Errorf("empty getBalance response")
		}
		return res.Value, nil
	})
}

// LatestBlockhash returns a fresh blockhash for signing.
func (r *Resolver) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return WithFallback(ctx, r, "getLatestBlockhash", func(ctx context.Context, c RPC) (solana.Hash, error) {
		res, err := c.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return solana.Hash{}, err
		}
		if res == nil || res.Value == nil {
			return solana.Hash{}, fmt.Errorf("empty getLatestBlockhash response")
		}
		return res.Value.Blockhash, nil
	})
}

// SendTransaction broadcasts a signed transaction.
func (r *Resolver) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return WithFallback(ctx, r, "sendTransaction", func(ctx context.Context, c RPC) (solana.Signature, error) {
		return c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false, // validate on the node before broadcast
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
	})
}

// SignatureStatuses returns one status per signature; unknown ones are nil.
func (r *Resolver) SignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	return WithFallback(ctx, r, "getSignatureStatuses", func(ctx context.Context, c RPC) ([]*rpc.SignatureStatusesResult, error) {
		res, err := c.GetSignatureStatuses(ctx, true, sigs...)
		if err != nil {
			return nil, err
		}
		out := make([]*rpc.SignatureStatusesResult, len(sigs))
		if res != nil {
			copy(out, res.Value)
		}
		return out, nil
	})
}

// SignaturesForAddress lists the newest signatures touching account.
func (r *Resolver) SignaturesForAddress(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	return WithFallback(ctx, r, "getSignaturesForAddress", func(ctx context.Context, c RPC) ([]*rpc.TransactionSignature, error) {
		return c.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		})
	})
}

// Transaction fetches one confirmed transaction.
func (r *Resolver) Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	return WithFallback(ctx, r, "getTransaction", func(ctx context.Context, c RPC) (*rpc.GetTransactionResult, error) {
		res, err := c.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxSupportedTxVersion,
		})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("transaction %s not found", sig)
		}
		return res, nil
	})
}

// RecentPrioritizationFees samples recently paid priority fees.
func (r *Resolver) RecentPrioritizationFees(ctx context.Context, accounts ...solana.PublicKey) ([]rpc.PriorizationFeeResult, error) {
	return WithFallback(ctx, r, "getRecentPrioritizationFees", func(ctx context.Context, c RPC) ([]rpc.PriorizationFeeResult, error) {
		keys := solana.PublicKeySlice{}
		keys = append(keys, accounts...)
		return c.GetRecentPrioritizationFees(ctx, keys)
	})
}
