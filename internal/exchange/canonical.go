// Package exchange validates orders against per-symbol trading rules and
// submits them through a backend — the shadow simulator or the live REST
// client. The router layered on top integrates with the idempotency guard
// so duplicate submissions and duplicate fill deliveries have no net
// economic effect.
package exchange

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"aurora-core/pkg/types"
)

// SpecHash computes the deterministic fingerprint of a canonicalized order
// request. Every field except the client order id participates; two
// requests that differ only in field arrival order or numeric formatting
// hash identically.
//
// Canonical form: fixed field order, uppercased enums, decimal
// stringification with trailing zeros trimmed ("0.00100" ≡ "0.001"),
// a nil price (as on MARKET orders) contributes an empty price field.
func SpecHash(req types.OrderRequest) string {
	price := ""
	if req.Price != nil {
		price = canonicalDecimal(req.Price.String())
	}
	canonical := strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(req.Symbol)),
		strings.ToUpper(string(req.Side)),
		strings.ToUpper(string(req.Type)),
		canonicalDecimal(req.Quantity.String()),
		price,
		strings.ToUpper(string(req.TimeInForce)),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// canonicalDecimal trims insignificant zeros so equal values stringify
// equally regardless of their decimal exponent.
func canonicalDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
