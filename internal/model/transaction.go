package model

import (
	"fmt"
	"time"

	"github.com/AlexZinkM/wallet-core/internal/common"
)

// TransactionType is the direction of a transfer as seen by the wallet.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "DEBIT"  // incoming
	TransactionTypeCredit TransactionType = "CREDIT" // outgoing
)

// Transaction status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// InstructionKind tags the closed set of instruction variants in history.
type InstructionKind string

const (
	InstructionSystemTransfer InstructionKind = "SYSTEM_TRANSFER"
	InstructionMemo           InstructionKind = "MEMO"
	InstructionTokenOp        InstructionKind = "TOKEN_OP"
	InstructionComputeBudget  InstructionKind = "COMPUTE_BUDGET"
	InstructionUnknown        InstructionKind = "UNKNOWN"
)

// Instruction is one classified instruction of a transaction. Only the
// fields of its Kind are set.
type Instruction struct {
	Kind      InstructionKind `json:"kind"`
	ProgramID string          `json:"programId"`
	From      string          `json:"from,omitempty"`     // SYSTEM_TRANSFER
	To        string          `json:"to,omitempty"`       // SYSTEM_TRANSFER
	Lamports  uint64          `json:"lamports,omitempty"` // SYSTEM_TRANSFER
	Memo      string          `json:"memo,omitempty"`     // MEMO
}

// TransactionRecord is one parsed history row.
type TransactionRecord struct {
	Type           TransactionType `json:"type"`
	TxID           string          `json:"txId"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Counterpart    string          `json:"counterpart"`
	Amount         string          `json:"amount"` // SOL
	AmountLamports uint64          `json:"amountLamports"`
	OurFeeSOL      string          `json:"ourFeeSOL"` // SOL we paid as fee
	FeeLamports    uint64          `json:"feeLamports"`
	Timestamp      time.Time       `json:"timestamp"`
	Slot           uint64          `json:"slot"`
	Status         string          `json:"status"`
	Memo           string          `json:"memo,omitempty"`
	MemoEncrypted  bool            `json:"memoEncrypted"`
	MemoDecrypted  bool            `json:"memoDecrypted,omitempty"`
	Instructions   []Instruction   `json:"instructions,omitempty"`
}

// LogResponse represents response for GET /solana/log
type LogResponse struct {
	WalletID       string              `json:"walletId"`
	Address        string              `json:"address"`
	TotalIncomeSOL string              `json:"total_income_SOL"`
	TotalSpentSOL  string              `json:"total_spent_SOL"`
	Transactions   []TransactionRecord `json:"transactions"`
}

// LogRequest represents request parameters for GET /solana/log
type LogRequest struct {
	WalletID  string           `form:"walletId"`
	Limit     int              `form:"limit"`
	Type      *TransactionType `form:"type"`
	TxID      *string          `form:"txId"`
	From      *time.Time       `form:"from"`
	To        *time.Time       `form:"to"`
	MinAmount *string          `form:"minAmount"`
	MaxAmount *string          `form:"maxAmount"`
}

// Validate validates LogRequest filter parameters.
func (r *LogRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidRequestf("limit must not be negative")
	}
	if r.Type != nil && *r.Type != TransactionTypeDebit && *r.Type != TransactionTypeCredit {
		return InvalidRequestf("type must be DEBIT or CREDIT")
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return InvalidRequestf("to date must be after or equal to from date")
	}
	for _, amt := range []*string{r.MinAmount, r.MaxAmount} {
		if amt == nil {
			continue
		}
		if _, err := common.SOLToLamports(*amt); err != nil {
			return fmt.Errorf("%w: invalid amount: %w", ErrInvalidRequest, err)
		}
	}
	if r.MinAmount != nil && r.MaxAmount != nil {
		cmp, err := common.CompareSOLAmounts(*r.MinAmount, *r.MaxAmount)
		if err != nil {
			return fmt.Errorf("%w: invalid amount: %w", ErrInvalidRequest, err)
		}
		if cmp == 1 {
			return InvalidRequestf("minAmount must be less than or equal to maxAmount")
		}
	}
	return nil
}
