package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Token is an immutable snapshot of a chain asset as last fetched.
// Tokens are compared by address+chainId identity, never by symbol.
type Token struct {
	Symbol   string          `json:"symbol"`
	Address  string          `json:"address"`
	Network  string          `json:"network"`
	ChainID  int64           `json:"chain_id"`
	Decimals int             `json:"decimals"`
	Balance  decimal.Decimal `json:"balance"`
	Tags     []string        `json:"tags,omitempty"` // e.g. "native", "stable"
}

// SameAs reports whether two tokens identify the same on-chain asset.
func (t *Token) SameAs(other *Token) bool {
	if t == nil || other == nil {
		return false
	}
	return strings.EqualFold(t.Address, other.Address) && t.ChainID == other.ChainID
}

// HasTag reports whether the token carries the given tag.
func (t *Token) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// SwapInfo identifies the settlement asset used as the intermediary
// for conversions. Read-only configuration supplied at startup.
type SwapInfo struct {
	TokenAddress string `json:"token_address"`
	Network      string `json:"network"`
}

// CalculationRequest is the tuple of inputs whose serialization is the
// deduplication key for the pricing pipelines. A new network request is
// issued only when this tuple changes.
type CalculationRequest struct {
	Network   string
	FromToken string
	ToToken   string
	Amount    string
	Identity  string
}

// Key serializes the request for stored-key comparison. The separator
// cannot appear in addresses, amounts or usernames.
func (r CalculationRequest) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", r.Network, r.FromToken, r.ToToken, r.Amount, r.Identity)
}

// ConversionResult is the outcome of a single conversion quote.
// Ephemeral: recomputed on every accepted request, never persisted.
type ConversionResult struct {
	ToAmount    decimal.Decimal
	Success     bool
	ErrorReason string
}

// ZeroConversion is the conservative-safe fallback: a zero figure never
// overstates value the way a stale non-zero one would.
func ZeroConversion(reason string) ConversionResult {
	return ConversionResult{ToAmount: decimal.Zero, Success: false, ErrorReason: reason}
}
