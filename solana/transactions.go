package solana

import (
	"context"
	"fmt"
	"sort"

	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/memo"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

// GetTransactions gets wallet transactions with filtering
func (s *Service) GetTransactions(ctx context.Context, req *model.LogRequest) (*model.LogResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.wallet(req.WalletID)
	if err != nil {
		return nil, err
	}

	history, err := s.reader.GetHistory(ctx, rec.Address(), req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	rows, err := filterTransactions(history, req)
	if err != nil {
		return nil, err
	}
	openMemos(rows, rec.Key)

	// Sort by time DESC (newest first)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})

	income, spent := totals(rows)
	return &model.LogResponse{
		WalletID:       rec.ID,
		Address:        rec.Address(),
		TotalIncomeSOL: common.LamportsToSOL(income),
		TotalSpentSOL:  common.LamportsToSOL(spent),
		Transactions:   rows,
	}, nil
}

func filterTransactions(history []model.TransactionRecord, req *model.LogRequest) ([]model.TransactionRecord, error) {
	out := make([]model.TransactionRecord, 0, len(history))
	for _, tx := range history {
		if req.Type != nil && *req.Type != tx.Type {
			continue
		}
		if req.TxID != nil && *req.TxID != tx.TxID {
			continue
		}
		if req.From != nil && tx.Timestamp.Before(*req.From) {
			continue
		}
		if req.To != nil && tx.Timestamp.After(*req.To) {
			continue
		}

		// Filter by amount (integer comparison, no float precision issues)
		if req.MinAmount != nil {
			cmp, err := common.CompareSOLAmounts(tx.Amount, *req.MinAmount)
			if err != nil {
				return nil, fmt.Errorf("failed to compare min amount: %w", err)
			}
			if cmp < 0 {
				continue
			}
		}
		if req.MaxAmount != nil {
			cmp, err := common.CompareSOLAmounts(tx.Amount, *req.MaxAmount)
			if err != nil {
				return nil, fmt.Errorf("failed to compare max amount: %w", err)
			}
			if cmp > 0 {
				continue
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

// openMemos replaces sealed memos with their text, or a placeholder when
// they are not addressed to key.
func openMemos(rows []model.TransactionRecord, key *keys.KeyMaterial) {
	for i := range rows {
		if !rows[i].MemoEncrypted {
			continue
		}
		res := memo.TryDecrypt(rows[i].Memo, key)
		rows[i].Memo = res.Text
		rows[i].MemoDecrypted = res.Decrypted
	}
}

// totals sums successful incoming (DEBIT) and outgoing (CREDIT) lamports.
func totals(rows []model.TransactionRecord) (income, spent uint64) {
	for _, tx := range rows {
		if tx.Status != model.StatusSuccess {
			continue
		}
		switch tx.Type {
		case model.TransactionTypeDebit:
			income += tx.AmountLamports
		case model.TransactionTypeCredit:
			spent += tx.AmountLamports
		}
	}
	return income, spent
}
