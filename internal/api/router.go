package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/AlexZinkM/wallet-core/internal/handler"
)

// NewRouter sets up router with handlers
func NewRouter(h *handler.SolanaHandler) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Wallet management
	mux.HandleFunc("/solana/generate", h.Generate)
	mux.HandleFunc("/solana/import/secret", h.ImportSecret)
	mux.HandleFunc("/solana/import/phrase", h.ImportPhrase)
	mux.HandleFunc("/solana/wallets", h.ListWallets)
	mux.HandleFunc("/solana/wallets/select", h.SelectWallet)
	mux.HandleFunc("/solana/wallets/rename", h.RenameWallet)
	mux.HandleFunc("/solana/wallets/delete", h.DeleteWallet)

	// Chain endpoints
	mux.HandleFunc("/solana/balance", h.GetBalance)
	mux.HandleFunc("/solana/balance/refresh", h.RefreshBalances)
	mux.HandleFunc("/solana/fee", h.GetFee)
	mux.HandleFunc("/solana/receive", h.Receive)
	mux.HandleFunc("/solana/transactions", h.TransactionHistory)
	mux.HandleFunc("/solana/pay/sol", h.PaySOL)

	return mux
}
