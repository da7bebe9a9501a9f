package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

// Backend is the abstract exchange client the router submits through.
type Backend interface {
	GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolFilters, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)
}

// ShadowConfig tunes the fill simulator.
type ShadowConfig struct {
	SlippageBps     float64         // applied to MARKET fills
	IOCPartialAbove decimal.Decimal // IOC quantities above this fill 70%
	FOKRejectAbove  decimal.Decimal // FOK quantities above this are rejected
}

func (c ShadowConfig) withDefaults() ShadowConfig {
	if c.SlippageBps == 0 {
		c.SlippageBps = 2.0
	}
	if c.IOCPartialAbove.IsZero() {
		c.IOCPartialAbove = decimal.NewFromInt(1)
	}
	if c.FOKRejectAbove.IsZero() {
		c.FOKRejectAbove = decimal.NewFromInt(10)
	}
	return c
}

// Shadow simulates exchange execution without touching the network. It
// validates against real filters (injected per symbol), applies
// slippage-in-bps to MARKET orders, partial-fills large IOC orders, and
// rejects large FOK orders outright.
type Shadow struct {
	cfg    ShadowConfig
	logger *slog.Logger

	mu       sync.Mutex
	filters  map[string]types.SymbolFilters
	refMid   map[string]decimal.Decimal
	counter  int64
	serverNs func() int64
}

// NewShadow creates a shadow backend over a static filter set.
func NewShadow(cfg ShadowConfig, filters map[string]types.SymbolFilters, logger *slog.Logger) *Shadow {
	fcopy := make(map[string]types.SymbolFilters, len(filters))
	for k, v := range filters {
		fcopy[k] = v
	}
	return &Shadow{
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "shadow"),
		filters:  fcopy,
		refMid:   make(map[string]decimal.Decimal),
		serverNs: func() int64 { return time.Now().UnixNano() },
	}
}

// SetReferenceMid updates the mark price used for MARKET fills and the
// notional check of price-less orders.
func (s *Shadow) SetReferenceMid(symbol string, mid decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refMid[symbol] = mid
}

func (s *Shadow) referenceMid(symbol string) decimal.Decimal {
	if mid, ok := s.refMid[symbol]; ok && !mid.IsZero() {
		return mid
	}
	return decimal.NewFromInt(50000)
}

// GetSymbolInfo returns the filters for a symbol or an UNKNOWN_SYMBOL error.
func (s *Shadow) GetSymbolInfo(_ context.Context, symbol string) (types.SymbolFilters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[symbol]
	if !ok {
		return types.SymbolFilters{}, &ValidationError{RejectUnknownSymbol, fmt.Sprintf("no filters for %s", symbol)}
	}
	return f, nil
}

// PlaceOrder validates, rounds, and simulates a fill. Filter violations are
// returned as rejection results (not errors) so the router can cache them.
func (s *Shadow) PlaceOrder(_ context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.filters[req.Symbol]
	if !ok {
		return s.reject(req, RejectUnknownSymbol, fmt.Sprintf("no filters for %s", req.Symbol)), nil
	}

	mid := s.referenceMid(req.Symbol)
	qty, price, verr := ValidateAndRound(f, req, mid)
	if verr != nil {
		return s.reject(req, verr.Reason, verr.Details), nil
	}

	// IOC: large orders get a 70% partial fill.
	status := types.StatusFilled
	if req.TimeInForce == types.TIFIOC && qty.GreaterThan(s.cfg.IOCPartialAbove) {
		qty = RoundQty(f, qty.Mul(decimal.RequireFromString("0.7")))
		status = types.StatusPartial
	}

	// FOK: orders beyond the liquidity threshold are killed.
	if req.TimeInForce == types.TIFFOK && qty.GreaterThan(s.cfg.FOKRejectAbove) {
		return s.reject(req, "FOK_INSUFFICIENT_LIQUIDITY",
			fmt.Sprintf("quantity %s exceeds simulated liquidity", qty)), nil
	}

	var fillPrice decimal.Decimal
	if req.Type == types.OrderTypeMarket || price == nil {
		// Market orders pay slippage off the reference mid.
		slip := decimal.NewFromFloat(s.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
		if req.Side == types.BUY {
			fillPrice = mid.Mul(decimal.NewFromInt(1).Add(slip))
		} else {
			fillPrice = mid.Mul(decimal.NewFromInt(1).Sub(slip))
		}
		fillPrice = RoundPrice(f, fillPrice)
	} else {
		fillPrice = *price
	}

	s.counter++
	now := s.serverNs()
	res := &types.OrderResult{
		OrderID:       fmt.Sprintf("SHADOW_%d_%d", now/int64(time.Millisecond), s.counter),
		ClientOrderID: req.ClientOrderID,
		Status:        status,
		ExecutedQty:   qty,
		CummQuoteCost: qty.Mul(fillPrice),
		Fills: []types.Fill{{
			Price:           fillPrice,
			Qty:             qty,
			Commission:      qty.Mul(fillPrice).Mul(decimal.RequireFromString("0.001")),
			CommissionAsset: "BNB",
			TradeID:         now / int64(time.Millisecond),
		}},
		ServerTimeNs: now,
	}
	s.logger.Debug("shadow fill",
		"symbol", req.Symbol, "side", req.Side, "qty", qty.String(),
		"price", fillPrice.String(), "status", string(status))
	return res, nil
}

func (s *Shadow) reject(req types.OrderRequest, reason, details string) *types.OrderResult {
	s.logger.Debug("shadow reject", "symbol", req.Symbol, "reason", reason, "details", details)
	return &types.OrderResult{
		ClientOrderID: req.ClientOrderID,
		Status:        types.StatusRejected,
		ExecutedQty:   decimal.Zero,
		RejectReason:  reason,
		RejectDetails: details,
		ServerTimeNs:  s.serverNs(),
	}
}
