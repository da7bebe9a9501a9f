package engine

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPositionBookOpenAndExtend(t *testing.T) {
	t.Parallel()
	b := NewPositionBook()

	b.OnFill("BTCUSDT", types.BUY, d("1"), d("100"))
	b.OnFill("BTCUSDT", types.BUY, d("1"), d("110"))

	pos := b.Get("BTCUSDT")
	if pos.Qty != 2 {
		t.Errorf("qty = %v, want 2", pos.Qty)
	}
	if math.Abs(pos.AvgEntry-105) > 1e-9 {
		t.Errorf("avg entry = %v, want 105", pos.AvgEntry)
	}
	if b.OpenPositions() != 1 {
		t.Errorf("open positions = %d, want 1", b.OpenPositions())
	}
}

func TestPositionBookRealizesOnReduce(t *testing.T) {
	t.Parallel()
	b := NewPositionBook()

	b.OnFill("BTCUSDT", types.BUY, d("2"), d("100"))
	b.OnFill("BTCUSDT", types.SELL, d("1"), d("110"))

	pos := b.Get("BTCUSDT")
	if pos.Qty != 1 {
		t.Errorf("qty = %v, want 1", pos.Qty)
	}
	if math.Abs(pos.RealizedPnL-10) > 1e-9 {
		t.Errorf("realized = %v, want 10", pos.RealizedPnL)
	}
}

func TestPositionBookFlip(t *testing.T) {
	t.Parallel()
	b := NewPositionBook()

	b.OnFill("ETHUSDT", types.BUY, d("1"), d("100"))
	b.OnFill("ETHUSDT", types.SELL, d("3"), d("120"))

	pos := b.Get("ETHUSDT")
	if pos.Qty != -2 {
		t.Errorf("qty = %v, want -2 after flip", pos.Qty)
	}
	if math.Abs(pos.RealizedPnL-20) > 1e-9 {
		t.Errorf("realized = %v, want 20", pos.RealizedPnL)
	}
	if pos.AvgEntry != 120 {
		t.Errorf("avg entry = %v, want fill price 120", pos.AvgEntry)
	}
}

func TestPositionBookMarkToMarket(t *testing.T) {
	t.Parallel()
	b := NewPositionBook()
	b.OnFill("BTCUSDT", types.BUY, d("2"), d("100"))
	b.MarkToMarket("BTCUSDT", 105)

	if got := b.TotalPnL(); math.Abs(got-10) > 1e-9 {
		t.Errorf("total pnl = %v, want 10 unrealized", got)
	}
}
