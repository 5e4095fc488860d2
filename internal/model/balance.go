package model

import "time"

// Congestion levels reported with a fee quote.
type Congestion string

const (
	CongestionLow    Congestion = "LOW"
	CongestionMedium Congestion = "MEDIUM"
	CongestionHigh   Congestion = "HIGH"
)

// FeeQuote is a point-in-time fee recommendation in lamports.
// TotalFee is always BaseFee + PriorityFee.
type FeeQuote struct {
	BaseFee     uint64     `json:"baseFee"`
	PriorityFee uint64     `json:"priorityFee"`
	TotalFee    uint64     `json:"totalFee"`
	Congestion  Congestion `json:"congestion"`
	ETA         string     `json:"eta"`
	Timestamp   time.Time  `json:"timestamp"`
}

// BalanceResponse represents response for GET /solana/balance
type BalanceResponse struct {
	WalletID string `json:"walletId"`
	Address  string `json:"address"`
	SOL      string `json:"sol"`
	Lamports uint64 `json:"lamports"`
}

// FeeResponse represents response for GET /solana/fee
type FeeResponse struct {
	FeeQuote
	TotalFeeSOL string `json:"totalFeeSOL"`
}
