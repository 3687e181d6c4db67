package xrpl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DropsPerXRP is the number of drops (the ledger's smallest unit) in one XRP.
const DropsPerXRP int64 = 1_000_000

// MaxXRP is the total XRP supply. No valid amount can exceed it, and keeping
// the whole part at or below it means the drops conversion cannot overflow.
const MaxXRP int64 = 100_000_000_000

// ErrInvalidXRPAmount is returned for malformed or out-of-range XRP amounts.
var ErrInvalidXRPAmount = errors.New("xrpl: invalid XRP amount")

// ParseXRP converts a decimal XRP string (e.g. "12.5") into drops without
// going through floating point. At most 6 decimal places are allowed.
func ParseXRP(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidXRPAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("%w: more than 6 decimal places", ErrInvalidXRPAmount)
	}
	// Right-pad the fraction to drop precision.
	frac += strings.Repeat("0", 6-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidXRPAmount
	}
	if w > MaxXRP {
		return 0, fmt.Errorf("%w: exceeds total XRP supply", ErrInvalidXRPAmount)
	}
	var f int64
	if frac != "000000" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, ErrInvalidXRPAmount
		}
	}

	drops := w*DropsPerXRP + f
	if drops <= 0 {
		return 0, ErrInvalidXRPAmount
	}
	return drops, nil
}

// FormatXRP renders drops as a decimal XRP string with trailing zeros trimmed.
func FormatXRP(drops int64) string {
	whole := drops / DropsPerXRP
	frac := drops % DropsPerXRP
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%06d", whole, frac)
	return strings.TrimRight(s, "0")
}
