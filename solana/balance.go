package solana

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

// GetBalance reads the on-chain balance of a wallet and caches it in the
// registry.
func (s *Service) GetBalance(ctx context.Context, id string) (*model.BalanceResponse, error) {
	rec, err := s.wallet(id)
	if err != nil {
		return nil, err
	}

	lamports, err := s.reader.GetBalanceStrict(ctx, rec.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	s.registry.ApplyBalance(rec.Address(), lamports)

	return &model.BalanceResponse{
		WalletID: rec.ID,
		Address:  rec.Address(),
		SOL:      common.LamportsToSOL(lamports),
		Lamports: lamports,
	}, nil
}

// RefreshBalances re-reads every wallet balance and returns the list.
func (s *Service) RefreshBalances(ctx context.Context) (*model.WalletListResponse, error) {
	n, err := s.registry.RefreshBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh balances: %w", err)
	}
	s.logger.Debug().Int("refreshed", n).Msg("balances refreshed")
	return s.ListWallets(), nil
}

// GetFee returns the current fee quote.
func (s *Service) GetFee(ctx context.Context) *model.FeeResponse {
	q := s.fees.GetOptimalFee(ctx)
	return &model.FeeResponse{FeeQuote: q, TotalFeeSOL: common.LamportsToSOL(q.TotalFee)}
}
