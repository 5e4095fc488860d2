package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

// PaySOL sends SOL from a wallet (the selected one when req.WalletID is
// empty). Only one payment runs at a time and payments are spaced by the
// configured cooldown.
func (s *Service) PaySOL(ctx context.Context, req model.PayRequest) (*model.PayResponse, error) {
	if !isValidSolanaAddress(req.ToAddress) {
		return nil, model.InvalidRequestf("invalid Solana address")
	}

	// Convert amount to lamports (string-based, no float precision loss)
	lamports, err := common.SOLToLamports(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount: %w", model.ErrInvalidRequest, err)
	}

	rec, err := s.wallet(req.WalletID)
	if err != nil {
		return nil, err
	}

	s.payMu.Lock()
	defer s.payMu.Unlock()

	if !s.lastPay.IsZero() && s.cooldown > 0 {
		if elapsed := s.now().Sub(s.lastPay); elapsed < s.cooldown {
			remaining := s.cooldown - elapsed
			return nil, fmt.Errorf("%w, please wait %v", model.ErrCooldownActive, remaining.Round(time.Second))
		}
	}

	res, err := s.pipeline.Send(ctx, model.TransferRequest{
		Sender:             rec.Address(),
		Recipient:          req.ToAddress,
		AmountLamports:     lamports,
		Memo:               req.Memo,
		IncludePlatformFee: req.IncludePlatformFee,
	}, rec.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.lastPay = s.now()

	return &model.PayResponse{
		TxID:           res.Signature,
		TransferResult: *res,
	}, nil
}

// isValidSolanaAddress validates a Solana address
func isValidSolanaAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
