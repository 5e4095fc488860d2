package model

// GenerateRequest represents request for POST /solana/generate.
// Words > 0 creates a phrase-backed wallet and returns the phrase once.
type GenerateRequest struct {
	Name  string `json:"name"`
	Words int    `json:"words"`
}

// GenerateResponse represents response for POST /solana/generate
type GenerateResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Wallet  WalletView `json:"wallet"`
	Phrase  string     `json:"phrase,omitempty"`
}

// ImportSecretRequest represents request for POST /solana/import/secret
type ImportSecretRequest struct {
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

// ImportPhraseRequest represents request for POST /solana/import/phrase
type ImportPhraseRequest struct {
	Phrase string `json:"phrase"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// ImportResponse lists the wallets an import added.
type ImportResponse struct {
	Imported []WalletView `json:"imported"`
}
