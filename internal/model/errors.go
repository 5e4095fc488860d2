package model

import (
	"errors"
	"fmt"

	"github.com/AlexZinkM/wallet-core/internal/common"
)

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("...: %w", ErrX)
// and test with errors.Is.
var (
	ErrInvalidPhrase       = errors.New("invalid recovery phrase")
	ErrInvalidSecretFormat = errors.New("invalid secret key format")
	ErrDuplicateWallet     = errors.New("wallet already exists")
	ErrAllDuplicates       = errors.New("all derived wallets already exist")
	ErrStorageUnavailable  = errors.New("secure storage unavailable")
	ErrPersistFailed       = errors.New("failed to persist wallets")
	ErrAllEndpointsFailed  = errors.New("all rpc endpoints failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrDecryptionFailed    = errors.New("memo decryption failed")

	ErrWalletNotFound = errors.New("wallet not found")
	ErrNameTaken      = errors.New("wallet name already taken")
	ErrCooldownActive = errors.New("payment cooldown active")
)

// InsufficientBalanceError names the exact shortfall of a send.
type InsufficientBalanceError struct {
	Required  uint64 // lamports
	Available uint64 // lamports
}

// Shortfall returns how many lamports are missing.
func (e *InsufficientBalanceError) Shortfall() uint64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s SOL, have %s SOL, short by %s SOL",
		common.LamportsToSOL(e.Required), common.LamportsToSOL(e.Available), common.LamportsToSOL(e.Shortfall()))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// InvalidRequestf builds an ErrInvalidRequest with a reason.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
