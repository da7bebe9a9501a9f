// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the trading core — market data
// records, order types, exchange filter rules, and the edge-budget breakdown.
// It has no dependencies on internal packages, so it can be imported by any
// layer.
package types

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a trade or order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the supported order types.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLimit       OrderType = "STOP_LIMIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// TimeInForce enumerates order lifetimes.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good-Til-Cancelled: rests until filled or cancelled
	TIFIOC TimeInForce = "IOC" // Immediate-Or-Cancel: fills what it can, cancels the rest
	TIFFOK TimeInForce = "FOK" // Fill-Or-Kill: fills completely or not at all
)

// OrderStatus is the lifecycle state of a submitted order.
//
// The partial order PENDING ≺ ACK ≺ {PARTIAL ≺ FILLED, CANCELED, REJECTED,
// ERROR} is enforced by the idempotency guard: once a terminal status is
// recorded, writes of non-terminal statuses are no-ops.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusAck      OrderStatus = "ACK"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusError    OrderStatus = "ERROR"
)

// Terminal reports whether the status admits no further forward transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle. Terminal states share the top
// rank so that e.g. CANCELED cannot be "advanced" to FILLED.
func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAck:
		return 1
	case StatusPartial:
		return 2
	case StatusFilled, StatusCanceled, StatusRejected, StatusError:
		return 3
	}
	return 0
}

// CanTransition reports whether moving from s to next respects status
// monotonicity. Re-applying the same terminal status is allowed (idempotent
// duplicate delivery); moving from a terminal to any other status is not.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return s == next
	}
	return next.rank() >= s.rank()
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Trade is a single executed trade. Timestamp is event-time seconds and
// must be monotone per symbol.
type Trade struct {
	Timestamp float64
	Price     float64
	Size      float64
	Side      Side
}

// MarketSnapshot is a point-in-time L2 view of one symbol's order book,
// plus the trades observed since the previous snapshot (may be empty).
// Index 0 of the volume slices is the best level.
type MarketSnapshot struct {
	Timestamp  float64
	BidPrice   float64
	AskPrice   float64
	BidVolumes []float64
	AskVolumes []float64
	Trades     []Trade
}

// Mid returns the midpoint price.
func (s MarketSnapshot) Mid() float64 { return 0.5 * (s.BidPrice + s.AskPrice) }

// Spread returns ask − bid.
func (s MarketSnapshot) Spread() float64 { return s.AskPrice - s.BidPrice }

// SpreadBps returns the quoted spread in basis points of mid, 0 when mid is 0.
func (s MarketSnapshot) SpreadBps() float64 {
	mid := s.Mid()
	if mid <= 0 {
		return 0
	}
	return 1e4 * s.Spread() / mid
}

// BestBidVolume returns the size at the best bid, 0 if the side is empty.
func (s MarketSnapshot) BestBidVolume() float64 {
	if len(s.BidVolumes) == 0 {
		return 0
	}
	return s.BidVolumes[0]
}

// BestAskVolume returns the size at the best ask, 0 if the side is empty.
func (s MarketSnapshot) BestAskVolume() float64 {
	if len(s.AskVolumes) == 0 {
		return 0
	}
	return s.AskVolumes[0]
}

// Validate checks the snapshot invariants: ask ≥ bid ≥ 0, volumes ≥ 0,
// trades in non-decreasing timestamp order, snapshot timestamp ≥ the last
// trade's timestamp.
func (s MarketSnapshot) Validate() error {
	if s.BidPrice < 0 || s.AskPrice < s.BidPrice {
		return fmt.Errorf("crossed or negative book: bid=%v ask=%v", s.BidPrice, s.AskPrice)
	}
	for _, v := range s.BidVolumes {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("bad bid volume %v", v)
		}
	}
	for _, v := range s.AskVolumes {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("bad ask volume %v", v)
		}
	}
	prev := math.Inf(-1)
	for _, tr := range s.Trades {
		if tr.Timestamp < prev {
			return fmt.Errorf("trades out of order: %v after %v", tr.Timestamp, prev)
		}
		prev = tr.Timestamp
		if tr.Timestamp > s.Timestamp {
			return fmt.Errorf("trade timestamp %v ahead of snapshot %v", tr.Timestamp, s.Timestamp)
		}
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Edge budget
// ————————————————————————————————————————————————————————————————————————

// EdgeBreakdown decomposes the expected edge of a trade into its cost
// components. All fields are in basis points.
type EdgeBreakdown struct {
	RawEdgeBps  float64 `json:"raw_edge_bps"`
	FeesBps     float64 `json:"fees_bps"`
	SlippageBps float64 `json:"slippage_bps"`
	AdverseBps  float64 `json:"adverse_bps"`
	LatencyBps  float64 `json:"latency_bps"`
	RebatesBps  float64 `json:"rebates_bps"`
}

// NetEdgeBps returns raw − (fees + slippage + adverse + latency) + rebates.
func (e EdgeBreakdown) NetEdgeBps() float64 {
	return e.RawEdgeBps - (e.FeesBps + e.SlippageBps + e.AdverseBps + e.LatencyBps) + e.RebatesBps
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is a normalized order submission. Price is nil for MARKET
// orders. ClientOrderID may be empty; the router generates one.
//
// Two requests are the same submission iff every field other than
// ClientOrderID is equal after canonical normalization — that equality is
// what the spec-hash fingerprint captures.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	TimeInForce   TimeInForce
	ClientOrderID string
}

// Fill is one execution slice inside an OrderResult.
type Fill struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset"`
	TradeID         int64           `json:"trade_id"`
}

// OrderResult is the outcome of an order submission, cached by the
// idempotency guard so duplicate submissions observe identical fields.
type OrderResult struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Status        OrderStatus     `json:"status"`
	ExecutedQty   decimal.Decimal `json:"executed_qty"`
	CummQuoteCost decimal.Decimal `json:"cumm_quote_cost"`
	Fills         []Fill          `json:"fills,omitempty"`
	ServerTimeNs  int64           `json:"server_time_ns"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	RejectDetails string          `json:"reject_details,omitempty"`
	Raw           map[string]any  `json:"raw,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Exchange filters
// ————————————————————————————————————————————————————————————————————————

// SymbolFilters holds the per-symbol exchange trading rules an order must
// satisfy: lot size bounds and step, price bounds and tick, and the minimum
// notional value.
type SymbolFilters struct {
	Symbol      string
	LotMinQty   decimal.Decimal
	LotMaxQty   decimal.Decimal
	LotStep     decimal.Decimal
	PriceMin    decimal.Decimal
	PriceMax    decimal.Decimal
	PriceTick   decimal.Decimal
	MinNotional decimal.Decimal
}

// DefaultFilters returns conservative fallback filters used when the
// exchange-info fetch fails at startup. Validation still runs against them.
func DefaultFilters(symbol string) SymbolFilters {
	return SymbolFilters{
		Symbol:      symbol,
		LotMinQty:   decimal.RequireFromString("0.001"),
		LotMaxQty:   decimal.RequireFromString("999999999"),
		LotStep:     decimal.RequireFromString("0.001"),
		PriceMin:    decimal.RequireFromString("0.01"),
		PriceMax:    decimal.RequireFromString("999999999"),
		PriceTick:   decimal.RequireFromString("0.01"),
		MinNotional: decimal.RequireFromString("10.0"),
	}
}

// ————————————————————————————————————————————————————————————————————————
// Risk state
// ————————————————————————————————————————————————————————————————————————

// SubmitStats counts recent order submissions and rejects, used by the
// reject-storm kill switch.
type SubmitStats struct {
	Total   int
	Rejects int
}

// DQFlags carries data-quality verdicts on the current book.
type DQFlags struct {
	StaleBook      bool
	CrossedBook    bool
	AbnormalSpread bool
}

// RiskState is the input to the static governance gates, assembled by the
// engine from live positions, PnL, and market microstructure.
type RiskState struct {
	PnlTodayPct   float64
	CVaRHist      *float64 // expected negative; nil = unknown, gate skipped
	SpreadBps     float64
	LatencyMs     float64
	VolStdBps     float64
	OpenPositions int
	RecentStats   SubmitStats
	DQ            DQFlags
	Timestamp     time.Time
}
