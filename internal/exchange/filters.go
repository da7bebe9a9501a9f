package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

// Rejection reason codes mirror the exchange's filter names.
const (
	RejectUnknownSymbol = "UNKNOWN_SYMBOL"
	RejectLotSize       = "LOT_SIZE"
	RejectPriceFilter   = "PRICE_FILTER"
	RejectMinNotional   = "MIN_NOTIONAL"
)

// ValidationError is a filter violation on an order request. It is terminal:
// the router caches it as a REJECTED record.
type ValidationError struct {
	Reason  string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("filter failure: %s - %s", e.Reason, e.Details)
}

// RoundQty rounds a quantity DOWN to the nearest multiple of the lot step.
func RoundQty(f types.SymbolFilters, qty decimal.Decimal) decimal.Decimal {
	if f.LotStep.IsZero() {
		return qty
	}
	return qty.Div(f.LotStep).Floor().Mul(f.LotStep)
}

// RoundPrice rounds a price DOWN to the nearest multiple of the price tick.
func RoundPrice(f types.SymbolFilters, price decimal.Decimal) decimal.Decimal {
	if f.PriceTick.IsZero() {
		return price
	}
	return price.Div(f.PriceTick).Floor().Mul(f.PriceTick)
}

// Validate checks qty/price against the filters in the documented order:
// lot bounds, lot step, price bounds, price tick, min notional. price is
// nil for MARKET orders; refMid then stands in for the notional check.
func Validate(f types.SymbolFilters, qty decimal.Decimal, price *decimal.Decimal, refMid decimal.Decimal) *ValidationError {
	if qty.LessThan(f.LotMinQty) {
		return &ValidationError{RejectLotSize, fmt.Sprintf("quantity %s < min %s", qty, f.LotMinQty)}
	}
	if qty.GreaterThan(f.LotMaxQty) {
		return &ValidationError{RejectLotSize, fmt.Sprintf("quantity %s > max %s", qty, f.LotMaxQty)}
	}
	if !f.LotStep.IsZero() && !qty.Mod(f.LotStep).IsZero() {
		return &ValidationError{RejectLotSize, fmt.Sprintf("quantity %s not a multiple of step %s", qty, f.LotStep)}
	}

	if price != nil {
		if price.LessThan(f.PriceMin) {
			return &ValidationError{RejectPriceFilter, fmt.Sprintf("price %s < min %s", price, f.PriceMin)}
		}
		if price.GreaterThan(f.PriceMax) {
			return &ValidationError{RejectPriceFilter, fmt.Sprintf("price %s > max %s", price, f.PriceMax)}
		}
		if !f.PriceTick.IsZero() && !price.Mod(f.PriceTick).IsZero() {
			return &ValidationError{RejectPriceFilter, fmt.Sprintf("price %s not a multiple of tick %s", price, f.PriceTick)}
		}
	}

	notionalPrice := refMid
	if price != nil {
		notionalPrice = *price
	}
	if notional := qty.Mul(notionalPrice); notional.LessThan(f.MinNotional) {
		return &ValidationError{RejectMinNotional, fmt.Sprintf("notional %s < min %s", notional, f.MinNotional)}
	}
	return nil
}

// ValidateAndRound rounds the request down to exchange precision and
// re-validates the rounded values. Returns the rounded qty/price.
func ValidateAndRound(f types.SymbolFilters, req types.OrderRequest, refMid decimal.Decimal) (decimal.Decimal, *decimal.Decimal, *ValidationError) {
	qty := RoundQty(f, req.Quantity)
	var price *decimal.Decimal
	if req.Price != nil {
		p := RoundPrice(f, *req.Price)
		price = &p
	}
	if verr := Validate(f, qty, price, refMid); verr != nil {
		return qty, price, verr
	}
	return qty, price, nil
}
