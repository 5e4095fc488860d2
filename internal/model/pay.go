package model

// TransferRequest is one principal transfer. Amounts are lamports.
type TransferRequest struct {
	Sender             string
	Recipient          string
	AmountLamports     uint64
	Memo               string
	IncludePlatformFee bool
}

// TransferResult is the outcome of a confirmed send.
type TransferResult struct {
	Signature           string   `json:"signature"`
	Attempts            int      `json:"attempts"`
	Fee                 FeeQuote `json:"fee"`
	MemoEncrypted       bool     `json:"memoEncrypted"`
	MemoWarning         string   `json:"memoWarning,omitempty"`
	PlatformFeeTxID     string   `json:"platformFeeTxId,omitempty"`
	PlatformFeeError    string   `json:"platformFeeError,omitempty"`
	PlatformFeeLamports uint64   `json:"platformFeeLamports,omitempty"`
}

// PayRequest represents request for POST /solana/pay
type PayRequest struct {
	WalletID           string `json:"walletId"`
	ToAddress          string `json:"toAddress" binding:"required"`
	Amount             string `json:"amount" binding:"required"` // SOL
	Memo               string `json:"memo"`
	IncludePlatformFee bool   `json:"includePlatformFee"`
}

// PayResponse represents response for POST /solana/pay
type PayResponse struct {
	TxID string `json:"txId"`
	TransferResult
}
