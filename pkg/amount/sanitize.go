// Package amount normalizes raw user-typed numeric text into canonical
// decimal strings before any of it reaches the calculation pipelines.
package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Sanitize normalizes a raw amount string: strips everything except
// digits and a single decimal point, truncates the fraction to
// maxDecimals, collapses leading zeros (preserving "0." forms) and
// prefixes a bare "." with "0". Total function, never fails.
func Sanitize(raw string, maxDecimals int) string {
	var b strings.Builder
	seenDot := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune('.')
		}
	}

	s := b.String()
	if s == "" {
		return ""
	}

	if maxDecimals < 0 {
		maxDecimals = 0
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if len(frac) > maxDecimals {
		frac = frac[:maxDecimals]
	}

	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}

	if !hasDot || maxDecimals == 0 {
		return whole
	}
	return whole + "." + frac
}

// Parse converts a sanitized amount to a decimal. Empty or
// unparseable input yields zero rather than an error: an amount the
// user has not finished typing is treated as no amount.
func Parse(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Positive reports whether the sanitized amount parses to a value
// strictly greater than zero.
func Positive(s string) bool {
	return Parse(s).IsPositive()
}
