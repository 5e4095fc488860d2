package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/solana"
)

// SolanaHandler serves the wallet HTTP API.
type SolanaHandler struct {
	svc    *solana.Service
	logger zerolog.Logger
}

// NewSolanaHandler creates a new SolanaHandler
func NewSolanaHandler(svc *solana.Service) *SolanaHandler {
	return &SolanaHandler{svc: svc, logger: log.WithComponent("http")}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidPhrase),
		errors.Is(err, model.ErrInvalidSecretFormat),
		errors.Is(err, model.ErrDecryptionFailed):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateWallet),
		errors.Is(err, model.ErrAllDuplicates),
		errors.Is(err, model.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrAllEndpointsFailed),
		errors.Is(err, model.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrStorageUnavailable),
		errors.Is(err, model.ErrPersistFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *SolanaHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, model.NewErrorResponse(err))
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.InvalidRequestf("invalid JSON body: %v", err)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed. Should be "+method, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// Generate handles POST /solana/generate
// @Summary      Generate new wallet
// @Description  Generates a new wallet and selects it. With words=12|24 a recovery phrase is created and returned once
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.GenerateRequest  false  "Name and phrase length"
// @Success      200      {object}  model.GenerateResponse
// @Failure      503      {object}  model.ErrorResponse
// @Router       /solana/generate [post]
func (h *SolanaHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.GenerateWallet(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportSecret handles POST /solana/import/secret
// @Summary      Import secret key
// @Description  Imports a base58 64-byte secret key
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportSecretRequest  true  "Secret key"
// @Success      200      {object}  model.ImportResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /solana/import/secret [post]
func (h *SolanaHandler) ImportSecret(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.ImportSecretRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.ImportSecret(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportPhrase handles POST /solana/import/phrase
// @Summary      Import recovery phrase
// @Description  Derives and imports the first count addresses of a BIP-39 phrase
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportPhraseRequest  true  "Phrase"
// @Success      200      {object}  model.ImportResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /solana/import/phrase [post]
func (h *SolanaHandler) ImportPhrase(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.ImportPhraseRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.ImportPhrase(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListWallets handles GET /solana/wallets
// @Summary      List wallets
// @Tags         wallets
// @Produce      json
// @Success      200  {object}  model.WalletListResponse
// @Router       /solana/wallets [get]
func (h *SolanaHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ListWallets())
}

// SelectWallet handles POST /solana/wallets/select
// @Summary      Select wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.WalletIDRequest  true  "Wallet"
// @Success      200      {object}  model.WalletListResponse
// @Failure      404      {object}  model.ErrorResponse
// @Router       /solana/wallets/select [post]
func (h *SolanaHandler) SelectWallet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.WalletIDRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.SelectWallet(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RenameWallet handles POST /solana/wallets/rename
// @Summary      Rename wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.RenameRequest  true  "Wallet and new name"
// @Success      200      {object}  model.WalletView
// @Failure      404      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /solana/wallets/rename [post]
func (h *SolanaHandler) RenameWallet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.RenameRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.RenameWallet(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteWallet handles POST /solana/wallets/delete
// @Summary      Delete wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.WalletIDRequest  true  "Wallet"
// @Success      200      {object}  model.WalletListResponse
// @Failure      404      {object}  model.ErrorResponse
// @Router       /solana/wallets/delete [post]
func (h *SolanaHandler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.WalletIDRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.DeleteWallet(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBalance handles GET /solana/balance
// @Summary      Get wallet balance
// @Description  Reads the SOL balance of a wallet (the selected one by default)
// @Tags         solana
// @Produce      json
// @Param        walletId  query     string  false  "Wallet ID"
// @Success      200       {object}  model.BalanceResponse
// @Failure      502       {object}  model.ErrorResponse
// @Router       /solana/balance [get]
func (h *SolanaHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp, err := h.svc.GetBalance(r.Context(), r.URL.Query().Get("walletId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshBalances handles POST /solana/balance/refresh
// @Summary      Refresh all balances
// @Tags         solana
// @Produce      json
// @Success      200  {object}  model.WalletListResponse
// @Router       /solana/balance/refresh [post]
func (h *SolanaHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	resp, err := h.svc.RefreshBalances(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFee handles GET /solana/fee
// @Summary      Current fee quote
// @Tags         solana
// @Produce      json
// @Success      200  {object}  model.FeeResponse
// @Router       /solana/fee [get]
func (h *SolanaHandler) GetFee(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GetFee(r.Context()))
}

// Receive handles GET /solana/receive
// @Summary      Receive address
// @Description  Returns the wallet address and a base64 PNG QR code of it
// @Tags         solana
// @Produce      json
// @Param        walletId  query     string  false  "Wallet ID"
// @Success      200       {object}  model.ReceiveResponse
// @Router       /solana/receive [get]
func (h *SolanaHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp, err := h.svc.ReceiveQR(r.URL.Query().Get("walletId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaySOL handles POST /solana/pay/sol
// @Summary      Send SOL
// @Description  Sends a SOL transaction to the specified address. Memos are encrypted for the recipient when possible
// @Tags         solana
// @Accept       json
// @Produce      json
// @Param        request  body      model.PayRequest  true  "Payment data"
// @Success      200      {object}  model.PayResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      422      {object}  model.ErrorResponse
// @Failure      429      {object}  model.ErrorResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /solana/pay/sol [post]
func (h *SolanaHandler) PaySOL(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req model.PayRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.PaySOL(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TransactionHistory handles GET /solana/transactions
// @Summary      Get wallet transactions
// @Description  Gets list of wallet transactions with filtering capability
// @Tags         solana
// @Produce      json
// @Param        walletId   query     string   false  "Wallet ID"
// @Param        limit      query     int      false  "Maximum signatures to scan"
// @Param        type       query     string   false  "Transaction type: DEBIT or CREDIT"
// @Param        txId       query     string   false  "Transaction ID"
// @Param        from       query     string   false  "Start date (YYYY-MM-DD)"
// @Param        to         query     string   false  "End date (YYYY-MM-DD)"
// @Param        minAmount  query     string   false  "Minimum amount"
// @Param        maxAmount  query     string   false  "Maximum amount"
// @Success      200  {object}  model.LogResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /solana/transactions [get]
func (h *SolanaHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	req, err := parseLogRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logResp, err := h.svc.GetTransactions(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logResp)
}

func parseLogRequest(r *http.Request) (*model.LogRequest, error) {
	q := r.URL.Query()
	req := &model.LogRequest{WalletID: q.Get("walletId")}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, model.InvalidRequestf("invalid limit: %q", limitStr)
		}
		req.Limit = limit
	}

	// Parse date parameters (YYYY-MM-DD)
	const dateLayout = "2006-01-02"
	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return nil, model.InvalidRequestf("invalid from date: use YYYY-MM-DD (e.g. 2006-01-02)")
		}
		req.From = &t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return nil, model.InvalidRequestf("invalid to date: use YYYY-MM-DD (e.g. 2006-01-02)")
		}
		// End of day so filter is inclusive
		t = t.Add(24*time.Hour - time.Nanosecond)
		req.To = &t
	}

	if typeStr := q.Get("type"); typeStr != "" {
		txType := model.TransactionType(typeStr)
		req.Type = &txType
	}
	if txID := q.Get("txId"); txID != "" {
		req.TxID = &txID
	}
	if minAmount := q.Get("minAmount"); minAmount != "" {
		req.MinAmount = &minAmount
	}
	if maxAmount := q.Get("maxAmount"); maxAmount != "" {
		req.MaxAmount = &maxAmount
	}
	return req, nil
}
