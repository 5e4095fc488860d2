package model

import "errors"

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Machine-readable error codes returned next to the message.
const (
	CodeInvalidPhrase       = "INVALID_PHRASE"
	CodeInvalidSecretFormat = "INVALID_SECRET_FORMAT"
	CodeDuplicateWallet     = "DUPLICATE_WALLET"
	CodeAllDuplicates       = "ALL_DUPLICATES"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodePersistFailed       = "PERSIST_FAILED"
	CodeAllEndpointsFailed  = "ALL_ENDPOINTS_FAILED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeSubmissionFailed    = "SUBMISSION_FAILED"
	CodeDecryptionFailed    = "DECRYPTION_FAILED"
	CodeWalletNotFound      = "WALLET_NOT_FOUND"
	CodeNameTaken           = "NAME_TAKEN"
	CodeCooldownActive      = "COOLDOWN_ACTIVE"
	CodeInternal            = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidPhrase, CodeInvalidPhrase},
	{ErrInvalidSecretFormat, CodeInvalidSecretFormat},
	{ErrDuplicateWallet, CodeDuplicateWallet},
	{ErrAllDuplicates, CodeAllDuplicates},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrPersistFailed, CodePersistFailed},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrSubmissionFailed, CodeSubmissionFailed},
	{ErrAllEndpointsFailed, CodeAllEndpointsFailed},
	{ErrDecryptionFailed, CodeDecryptionFailed},
	{ErrWalletNotFound, CodeWalletNotFound},
	{ErrNameTaken, CodeNameTaken},
	{ErrCooldownActive, CodeCooldownActive},
}

// CodeFor maps an error from the taxonomy to its code. The first match wins.
func CodeFor(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// NewErrorResponse builds the API payload for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: CodeFor(err)}
}
