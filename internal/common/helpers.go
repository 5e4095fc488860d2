package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ccoveille/go-safecast"
)

const (
	SOLDecimals       = 9 // SOL has 9 decimals (lamports)
	LamportsPerSOL    = 1_000_000_000
	maxDecimalsLength = 20
)

// LamportsToSOL converts lamports to SOL string without float precision loss
func LamportsToSOL(lamports uint64) string {
	return formatWithDecimals(lamports, SOLDecimals)
}

// SOLToLamports converts SOL string to lamports without float precision loss
func SOLToLamports(sol string) (uint64, error) {
	return parseWithDecimals(sol, SOLDecimals)
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("amount must be unsigned: %q", s)
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}

	// Pad or truncate fractional part to exact decimals
	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	} else if len(frac) > decimals {
		frac = frac[:decimals]
	}

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return 0, nil
	}
	if len(combined) > maxDecimalsLength {
		return 0, fmt.Errorf("amount too large: %q", s)
	}
	return strconv.ParseUint(combined, 10, 64)
}

// CompareSOLAmounts compares two SOL decimal string amounts without float precision loss.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareSOLAmounts(a, b string) (int, error) {
	aVal, err := SOLToLamports(a)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := SOLToLamports(b)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	switch {
	case aVal < bVal:
		return -1, nil
	case aVal > bVal:
		return 1, nil
	}
	return 0, nil
}

// SafeAdd adds lamport amounts, failing instead of wrapping around.
func SafeAdd(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		if v > math.MaxUint64-total {
			return 0, fmt.Errorf("lamport amount overflow")
		}
		total += v
	}
	return total, nil
}

// SignedDelta returns post-pre as a signed value, failing when the
// difference does not fit an int64.
func SignedDelta(pre, post uint64) (int64, error) {
	if post >= pre {
		return safecast.ToInt64(post - pre)
	}
	d, err := safecast.ToInt64(pre - post)
	if err != nil {
		return 0, err
	}
	return -d, nil
}
