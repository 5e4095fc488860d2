package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("failed to import wallet: %w", ErrDuplicateWallet), CodeDuplicateWallet},
		{InvalidRequestf("bad"), CodeInvalidRequest},
		{&InsufficientBalanceError{Required: 10, Available: 3}, CodeInsufficientBalance},
		{fmt.Errorf("%w, please wait 3s", ErrCooldownActive), CodeCooldownActive},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeFor(tt.err), tt.err.Error())
	}

	resp := NewErrorResponse(ErrWalletNotFound)
	assert.Equal(t, ErrorResponse{Error: "wallet not found", Code: CodeWalletNotFound}, resp)
}

func TestInsufficientBalanceError(t *testing.T) {
	err := &InsufficientBalanceError{Required: 1_500_000_000, Available: 1_000_000_000}
	assert.Equal(t, uint64(500_000_000), err.Shortfall())
	assert.Equal(t, "insufficient balance: need 1.500000000 SOL, have 1.000000000 SOL, short by 0.500000000 SOL", err.Error())
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var target *InsufficientBalanceError
	require.ErrorAs(t, fmt.Errorf("send: %w", err), &target)
	assert.Equal(t, uint64(0), (&InsufficientBalanceError{Required: 1, Available: 2}).Shortfall())
}

func TestLogRequestValidate(t *testing.T) {
	ptr := func(s string) *string { return &s }
	typ := func(s string) *TransactionType { v := TransactionType(s); return &v }
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := day.Add(-time.Hour)

	tests := []struct {
		name    string
		req     LogRequest
		wantErr bool
	}{
		{"empty", LogRequest{}, false},
		{"debit", LogRequest{Type: typ("DEBIT")}, false},
		{"unknown type", LogRequest{Type: typ("REFUND")}, true},
		{"negative limit", LogRequest{Limit: -1}, true},
		{"reversed dates", LogRequest{From: &day, To: &before}, true},
		{"same day", LogRequest{From: &day, To: &day}, false},
		{"bad amount", LogRequest{MinAmount: ptr("1,5")}, true},
		{"min above max", LogRequest{MinAmount: ptr("2"), MaxAmount: ptr("1.5")}, true},
		{"range", LogRequest{MinAmount: ptr("0.5"), MaxAmount: ptr("1.5")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
		})
	}
}
