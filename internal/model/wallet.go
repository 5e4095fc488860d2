package model

import "time"

// VaultFile represents the sealed .cwt file structure.
type VaultFile struct {
	Version    int    `json:"version"`
	Network    string `json:"network"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// LegacyWalletData is the single-wallet payload written by older releases.
type LegacyWalletData struct {
	PrivateKey string `json:"privateKey"` // base64 64-byte key or hex 32-byte seed
	CreatedAt  string `json:"createdAt"`
}

// WalletView is the public part of a wallet record.
type WalletView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	BalanceLamports   uint64    `json:"balanceLamports"`
	BalanceSOL        string    `json:"balanceSOL"`
	CreatedAt         time.Time `json:"createdAt"`
	PhraseFingerprint string    `json:"phraseFingerprint,omitempty"`
	DerivationIndex   *uint32   `json:"derivationIndex,omitempty"`
	MultiAddress      bool      `json:"multiAddress"`
	Selected          bool      `json:"selected"`
}

// WalletListResponse represents response for GET /solana/wallets
type WalletListResponse struct {
	Connected  bool         `json:"connected"`
	SelectedID string       `json:"selectedId"`
	Wallets    []WalletView `json:"wallets"`
}

// RenameRequest represents request for POST /solana/wallets/rename
type RenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WalletIDRequest carries a wallet id for select and delete.
type WalletIDRequest struct {
	ID string `json:"id"`
}

// ReceiveResponse represents response for GET /solana/receive
type ReceiveResponse struct {
	Address string `json:"address"`
	QR      string `json:"QR"` // base64 PNG
}
