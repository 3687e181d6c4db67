package escrow

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// PREIMAGE-SHA-256 crypto-condition framing (crypto-conditions draft), the
// scheme the XRP Ledger enforces for conditional escrows:
//
//	condition   = A0 25 80 20 <sha256(preimage)> 81 01 20
//	fulfillment = A0 22 80 20 <preimage>
//
// The preimage is always 32 bytes here, so the DER lengths are fixed.
var (
	conditionPrefix   = []byte{0xA0, 0x25, 0x80, 0x20}
	conditionSuffix   = []byte{0x81, 0x01, 0x20} // cost = preimage length (32)
	fulfillmentPrefix = []byte{0xA0, 0x22, 0x80, 0x20}
)

// Condition is a hash commitment and its secret preimage. The condition is
// safe to disclose publicly (it is embedded in the EscrowCreate transaction);
// the fulfillment must stay secret until verification time.
type Condition struct {
	Condition   string // uppercase hex, persisted and sent to the ledger
	Fulfillment string // uppercase hex, secret until intentional disclosure
}

// NewCondition draws a fresh 32-byte preimage from crypto/rand and derives
// its PREIMAGE-SHA-256 condition. Every escrow gets its own preimage; reuse
// would let one disclosure release every escrow sharing it.
func NewCondition() (*Condition, error) {
	preimage := make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return conditionFromPreimage(preimage), nil
}

func conditionFromPreimage(preimage []byte) *Condition {
	digest := sha256.Sum256(preimage)

	cond := append(append(append([]byte{}, conditionPrefix...), digest[:]...), conditionSuffix...)
	ff := append(append([]byte{}, fulfillmentPrefix...), preimage...)

	return &Condition{
		Condition:   strings.ToUpper(hex.EncodeToString(cond)),
		Fulfillment: strings.ToUpper(hex.EncodeToString(ff)),
	}
}

// VerifyFulfillment reports whether fulfillment's preimage hashes to the
// commitment inside condition. Both arguments are the hex encodings above.
func VerifyFulfillment(condition, fulfillment string) bool {
	condBytes, err := hex.DecodeString(condition)
	if err != nil || len(condBytes) != len(conditionPrefix)+32+len(conditionSuffix) {
		return false
	}
	ffBytes, err := hex.DecodeString(fulfillment)
	if err != nil || len(ffBytes) != len(fulfillmentPrefix)+32 {
		return false
	}

	preimage := ffBytes[len(fulfillmentPrefix):]
	digest := sha256.Sum256(preimage)
	committed := condBytes[len(conditionPrefix) : len(conditionPrefix)+32]

	return subtle.ConstantTimeCompare(digest[:], committed) == 1
}
