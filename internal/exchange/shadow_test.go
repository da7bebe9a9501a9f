package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"aurora-core/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestShadow() *Shadow {
	return NewShadow(ShadowConfig{SlippageBps: 2},
		map[string]types.SymbolFilters{"BTCUSDT": btcFilters()}, testLogger())
}

func TestShadowLimitFill(t *testing.T) {
	t.Parallel()
	s := newTestShadow()

	res, err := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeLimit,
		Quantity: dec("0.002"), Price: decPtr("50000.00"), TimeInForce: types.TIFGTC,
		ClientOrderID: "c1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != types.StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	if !res.ExecutedQty.Equal(dec("0.002")) {
		t.Errorf("executed = %s, want 0.002", res.ExecutedQty)
	}
	if len(res.Fills) != 1 || !res.Fills[0].Price.Equal(dec("50000.00")) {
		t.Errorf("limit fill must execute at the limit price, got %+v", res.Fills)
	}
}

func TestShadowMarketSlippage(t *testing.T) {
	t.Parallel()
	s := newTestShadow()
	s.SetReferenceMid("BTCUSDT", dec("50000"))

	buy, _ := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeMarket,
		Quantity: dec("0.002"), TimeInForce: types.TIFGTC, ClientOrderID: "b",
	})
	sell, _ := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.SELL, Type: types.OrderTypeMarket,
		Quantity: dec("0.002"), TimeInForce: types.TIFGTC, ClientOrderID: "s",
	})

	if !buy.Fills[0].Price.GreaterThan(dec("50000")) {
		t.Errorf("BUY market fill %s should pay up from mid", buy.Fills[0].Price)
	}
	if !sell.Fills[0].Price.LessThan(dec("50000")) {
		t.Errorf("SELL market fill %s should give up from mid", sell.Fills[0].Price)
	}
}

func TestShadowIOCPartial(t *testing.T) {
	t.Parallel()
	s := newTestShadow()

	res, _ := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeLimit,
		Quantity: dec("2"), Price: decPtr("50000.00"), TimeInForce: types.TIFIOC,
		ClientOrderID: "ioc",
	})
	if res.Status != types.StatusPartial {
		t.Fatalf("status = %s, want PARTIAL for large IOC", res.Status)
	}
	if !res.ExecutedQty.Equal(dec("1.4")) { // 70% of 2, on the lot grid
		t.Errorf("executed = %s, want 1.4", res.ExecutedQty)
	}
}

func TestShadowFOKReject(t *testing.T) {
	t.Parallel()
	s := newTestShadow()

	res, err := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeLimit,
		Quantity: dec("50"), Price: decPtr("50000.00"), TimeInForce: types.TIFFOK,
		ClientOrderID: "fok",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != types.StatusRejected {
		t.Fatalf("status = %s, want REJECTED for oversized FOK", res.Status)
	}
	if res.RejectReason != "FOK_INSUFFICIENT_LIQUIDITY" {
		t.Errorf("reason = %s", res.RejectReason)
	}
}

func TestShadowFilterRejection(t *testing.T) {
	t.Parallel()
	s := newTestShadow()

	res, err := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Side: types.BUY, Type: types.OrderTypeLimit,
		Quantity: dec("0.0001"), Price: decPtr("50000.00"), TimeInForce: types.TIFGTC,
		ClientOrderID: "tiny",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != types.StatusRejected || res.RejectReason != RejectLotSize {
		t.Errorf("got (%s, %s), want (REJECTED, LOT_SIZE)", res.Status, res.RejectReason)
	}
}

func TestShadowUnknownSymbol(t *testing.T) {
	t.Parallel()
	s := newTestShadow()
	res, err := s.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "DOGEUSDT", Side: types.BUY, Type: types.OrderTypeMarket,
		Quantity: dec("1"), TimeInForce: types.TIFGTC, ClientOrderID: "d",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.RejectReason != RejectUnknownSymbol {
		t.Errorf("reason = %s, want UNKNOWN_SYMBOL", res.RejectReason)
	}
	if _, err := s.GetSymbolInfo(context.Background(), "DOGEUSDT"); err == nil {
		t.Error("GetSymbolInfo for unknown symbol should error")
	}
}
