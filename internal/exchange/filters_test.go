package exchange

import (
	"testing"

	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

func btcFilters() types.SymbolFilters {
	return types.SymbolFilters{
		Symbol:      "BTCUSDT",
		LotMinQty:   dec("0.001"),
		LotMaxQty:   dec("1000"),
		LotStep:     dec("0.001"),
		PriceMin:    dec("0.01"),
		PriceMax:    dec("1000000"),
		PriceTick:   dec("0.01"),
		MinNotional: dec("10"),
	}
}

func TestRoundingDown(t *testing.T) {
	t.Parallel()
	f := btcFilters()

	if got := RoundQty(f, dec("0.00123456")); !got.Equal(dec("0.001")) {
		t.Errorf("RoundQty = %s, want 0.001", got)
	}
	if got := RoundPrice(f, dec("50000.127")); !got.Equal(dec("50000.12")) {
		t.Errorf("RoundPrice = %s, want 50000.12", got)
	}
	// Exact multiples are unchanged.
	if got := RoundQty(f, dec("0.005")); !got.Equal(dec("0.005")) {
		t.Errorf("RoundQty exact = %s, want 0.005", got)
	}
}

func TestValidateAndRoundAccepts(t *testing.T) {
	t.Parallel()
	f := btcFilters()
	req := types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeLimit,
		Quantity: dec("0.00123456"), Price: decPtr("50000.127"), TimeInForce: types.TIFGTC,
	}
	qty, price, verr := ValidateAndRound(f, req, dec("50000"))
	if verr != nil {
		t.Fatalf("unexpected rejection: %v", verr)
	}
	if !qty.Equal(dec("0.001")) || !price.Equal(dec("50000.12")) {
		t.Errorf("rounded = (%s, %s), want (0.001, 50000.12)", qty, price)
	}
	// notional = 50.00012 ≥ 10
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()
	f := btcFilters()

	tests := []struct {
		name   string
		qty    string
		price  string // empty = MARKET
		reason string
	}{
		{"below lot min", "0.0001", "50000", RejectLotSize},
		{"above lot max", "2000", "50000", RejectLotSize},
		{"price below min", "0.001", "0.001", RejectPriceFilter},
		{"below min notional", "0.001", "100.00", RejectMinNotional},
		{"market below notional", "0.001", "", RejectMinNotional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pd *decimal.Decimal
			if tt.price != "" {
				pd = decPtr(tt.price)
			}
			verr := Validate(f, dec(tt.qty), pd, dec("100"))
			if verr == nil {
				t.Fatal("expected rejection")
			}
			if verr.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", verr.Reason, tt.reason)
			}
		})
	}
}

func TestValidateStepViolationCaughtBeforeRounding(t *testing.T) {
	t.Parallel()
	f := btcFilters()
	// Raw quantity not on the step grid trips Validate directly...
	if verr := Validate(f, dec("0.0015"), nil, dec("50000")); verr == nil || verr.Reason != RejectLotSize {
		t.Fatalf("0.0015 is off the 0.001 grid: got %v, want LOT_SIZE", verr)
	}
	if verr := Validate(f, dec("0.00151"), nil, dec("50000")); verr == nil || verr.Reason != RejectLotSize {
		t.Errorf("off-grid quantity: got %v, want LOT_SIZE", verr)
	}
	// ...but ValidateAndRound rounds it onto the grid first.
	req := types.OrderRequest{Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeMarket,
		Quantity: dec("0.00151"), TimeInForce: types.TIFGTC}
	qty, _, verr := ValidateAndRound(f, req, dec("50000"))
	if verr != nil {
		t.Fatalf("rounded request rejected: %v", verr)
	}
	if !qty.Equal(dec("0.001")) {
		t.Errorf("rounded qty = %s, want 0.001", qty)
	}
}
