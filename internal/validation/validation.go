// Package validation provides input validation helpers for the HTTP API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for free-text string fields.
const MaxStringLength = 10000

// xrpAddressRegex validates XRP Ledger classic addresses: an 'r' followed by
// 24-34 base58 characters (ripple alphabet excludes 0, O, I and l).
// Full base58check verification happens on the ledger; this catches typos early.
var xrpAddressRegex = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// amountRegex matches a positive decimal XRP amount with up to 6 decimal
// places (one drop is 0.000001 XRP).
var amountRegex = regexp.MustCompile(`^\d{1,13}(\.\d{1,6})?$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidXRPAddress checks whether a string looks like an XRPL classic address.
func IsValidXRPAddress(addr string) bool {
	return xrpAddressRegex.MatchString(addr)
}

// IsValidAmount checks whether a string is a well-formed positive XRP amount.
func IsValidAmount(s string) bool {
	if !amountRegex.MatchString(s) {
		return false
	}
	// Reject all-zero amounts like "0" and "0.000000".
	return strings.Trim(strings.Replace(s, ".", "", 1), "0") != ""
}

// SanitizeString trims whitespace, caps length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks that a field is a valid XRPL address.
// Empty values pass; combine with Required for required fields.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidXRPAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid XRP Ledger address (r...)"}
		}
		return nil
	}
}

// ValidAmount checks that a field is a well-formed positive XRP amount.
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAmount(value) {
			return &ValidationError{Field: field, Message: "must be a positive XRP amount with at most 6 decimal places"}
		}
		return nil
	}
}
