// Package txevent holds the decoded transaction variant the tracker
// dispatches on, and the total function that pulls a token address out
// of it (spec §4.7).
package txevent

import (
	"strings"

	"github.com/mr-tron/base58"
)

// WrappedSOLMint is the fungible-token mint representing native SOL.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Kind is the normalized classification of a decoded transaction.
type Kind string

const (
	Buy   Kind = "BUY"
	Sell  Kind = "SELL"
	Other Kind = "OTHER"
)

// RawTx is the wire transaction handed to the decoder. The decoder
// itself is an external collaborator (spec §1); this struct is only the
// shape the tracker core passes through.
type RawTx struct {
	Signature string
	Slot      uint64
	CreatedAt *int64 // unix seconds, optional — present gives processed-quality timing
	Data      []byte
}

// Event is the decoder's tagged-variant output. Only the fields relevant
// to Kind are populated; consumers pattern-match on Kind rather than
// probing zero values.
type Event struct {
	Signature string
	Slot      uint64
	Kind      Kind
	Platform  string

	MintIn  string
	MintOut string

	AmountIn  float64
	AmountOut float64

	FeePayer string
	Creator  string // mint creator/authority, if the decoder can attribute it

	PoolAddress string

	// Pricing the decoder may already have derived from the instruction
	// data itself (e.g. an AMM swap's implied price); nil when unknown.
	PriceSol *float64
	PriceUsd *float64
}

// Decoder turns a raw wire transaction into a decoded Event. Returning a
// nil Event and nil error means "not a BUY/SELL/OTHER we track" — the
// router drops it silently. A non-nil error means decode failed and
// should be logged and dropped (spec §7, DecodeFailure).
type Decoder interface {
	Decode(raw RawTx) (*Event, error)
}

// TokenAddress applies the non-native-SOL mint extraction rule (spec
// §4.7): BUY yields MintOut unless it is wrapped SOL, SELL yields MintIn
// unless it is wrapped SOL, anything else yields "".
func (e *Event) TokenAddress() string {
	switch e.Kind {
	case Buy:
		if e.MintOut != "" && !strings.EqualFold(e.MintOut, WrappedSOLMint) {
			return e.MintOut
		}
		return ""
	case Sell:
		if e.MintIn != "" && !strings.EqualFold(e.MintIn, WrappedSOLMint) {
			return e.MintIn
		}
		return ""
	default:
		return ""
	}
}

// ValidAddress reports whether s decodes as a base58 Solana pubkey (a
// 32-byte address). The decoder is an external collaborator and may
// hand back malformed mints on a bad feed; the router checks the address
// TokenAddress extracted and drops the event before it reaches the token
// queue, enrichment, or pool monitoring.
func ValidAddress(s string) bool {
	decoded, err := base58.Decode(s)
	return err == nil && len(decoded) == 32
}

// Normalize upper-cases Kind the way the router expects after a decoder
// hands back a loosely-typed result (spec §4.2 step 3).
func Normalize(k string) Kind {
	switch strings.ToUpper(strings.TrimSpace(k)) {
	case "BUY":
		return Buy
	case "SELL":
		return Sell
	default:
		return Other
	}
}
