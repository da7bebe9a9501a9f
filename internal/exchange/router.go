package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"aurora-core/internal/idem"
	"aurora-core/pkg/types"
)

// TransportError wraps a network/timeout failure from the exchange backend.
// The guard records ERROR for the order, so a retry with the same client
// order id is safe.
type TransportError struct {
	COID string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport error for %q: %v", e.COID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RouterConfig tunes the submission pipeline.
type RouterConfig struct {
	PendingTTL time.Duration // ttl of the PENDING record written pre-submit
	ResultTTL  time.Duration // ttl of cached terminal results
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.PendingTTL <= 0 {
		c.PendingTTL = 10 * time.Minute
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = time.Hour
	}
	return c
}

// Router validates and rounds order requests against per-symbol filters and
// submits them through the backend, with every submission funneled through
// the idempotency guard.
type Router struct {
	cfg     RouterConfig
	backend Backend
	guard   *idem.Guard
	logger  *slog.Logger

	mu      sync.Mutex
	filters map[string]types.SymbolFilters
	refMid  map[string]decimal.Decimal
	counter int64
	nowMs   func() int64
}

// NewRouter creates a router and fetches filters for the given symbols. A
// failed fetch falls back to conservative defaults with a logged warning;
// validation still runs.
func NewRouter(ctx context.Context, cfg RouterConfig, backend Backend, guard *idem.Guard, symbols []string, logger *slog.Logger) *Router {
	r := &Router{
		cfg:     cfg.withDefaults(),
		backend: backend,
		guard:   guard,
		logger:  logger.With("component", "router"),
		filters: make(map[string]types.SymbolFilters),
		refMid:  make(map[string]decimal.Decimal),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
	for _, sym := range symbols {
		f, err := backend.GetSymbolInfo(ctx, sym)
		if err != nil {
			r.logger.Warn("filter fetch failed, using defaults", "symbol", sym, "error", err)
			f = types.DefaultFilters(sym)
		}
		r.filters[sym] = f
	}
	return r
}

// SetReferenceMid updates the mark price used for MARKET notional checks.
func (r *Router) SetReferenceMid(symbol string, mid decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refMid[symbol] = mid
}

// Filters returns the active filters for a symbol.
func (r *Router) Filters(symbol string) (types.SymbolFilters, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.filters[symbol]
	return f, ok
}

// nextCOID generates a deterministic client order id from the millisecond
// clock and a monotonic counter.
func (r *Router) nextCOID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return fmt.Sprintf("aur-%d-%d", r.nowMs(), r.counter)
}

// PlaceOrderIdempotent submits an order with at-most-once semantics:
//
//  1. Compute the spec hash of the canonicalized request.
//  2. Generate a client order id if absent.
//  3. Pre-submit check: a HIT returns the cached result without touching
//     the network; a conflict propagates.
//  4. Validate+round; a filter rejection is recorded as terminal REJECTED
//     and returned (a retry returns the cached rejection).
//  5. Submit. Success records the result status; a transport error records
//     ERROR and surfaces — no internal retry, the guard makes the caller's
//     retry idempotent.
func (r *Router) PlaceOrderIdempotent(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	specHash := SpecHash(req)
	if req.ClientOrderID == "" {
		req.ClientOrderID = r.nextCOID()
	}
	coid := req.ClientOrderID

	check, err := r.guard.PreSubmitCheck(coid, specHash, r.cfg.PendingTTL)
	if err != nil {
		return nil, err
	}
	if check.Outcome == idem.Hit {
		if cached, ok := check.Record.OrderResult(); ok {
			return cached, nil
		}
		// Degraded or result-less record: return the raw status; the
		// submission stays blocked either way.
		return &types.OrderResult{ClientOrderID: coid, Status: check.Record.Status}, nil
	}

	r.mu.Lock()
	f, known := r.filters[req.Symbol]
	mid := r.refMid[req.Symbol]
	r.mu.Unlock()

	if !known {
		return r.reject(coid, req, RejectUnknownSymbol, fmt.Sprintf("no filters for %s", req.Symbol))
	}
	if mid.IsZero() {
		mid = f.MinNotional // degenerate mark; notional check still runs
	}

	qty, price, verr := ValidateAndRound(f, req, mid)
	if verr != nil {
		return r.reject(coid, req, verr.Reason, verr.Details)
	}
	req.Quantity = qty
	req.Price = price

	res, err := r.backend.PlaceOrder(ctx, req)
	if err != nil {
		if _, merr := r.guard.MarkStatus(coid, types.StatusError, r.cfg.ResultTTL, nil); merr != nil {
			r.logger.Error("failed to record transport error", "coid", coid, "error", merr)
		}
		return nil, &TransportError{COID: coid, Err: err}
	}

	if _, err := r.guard.MarkStatus(coid, res.Status, r.cfg.ResultTTL, res); err != nil {
		return nil, fmt.Errorf("record result %q: %w", coid, err)
	}
	return res, nil
}

func (r *Router) reject(coid string, req types.OrderRequest, reason, details string) (*types.OrderResult, error) {
	res := &types.OrderResult{
		ClientOrderID: coid,
		Status:        types.StatusRejected,
		ExecutedQty:   decimal.Zero,
		RejectReason:  reason,
		RejectDetails: details,
	}
	if _, err := r.guard.MarkStatus(coid, types.StatusRejected, r.cfg.ResultTTL, res); err != nil {
		return nil, fmt.Errorf("record rejection %q: %w", coid, err)
	}
	r.logger.Info("order rejected", "coid", coid, "symbol", req.Symbol, "reason", reason)
	return res, nil
}

// ExecutionEvent is an exchange-delivered order lifecycle callback.
// ExecutedQty and CummQuoteCost are cumulative. EventID identifies the
// delivery for de-duplication.
type ExecutionEvent struct {
	ClientOrderID string
	EventID       string
	Status        types.OrderStatus
	ExecutedQty   decimal.Decimal
	CummQuoteCost decimal.Decimal
	Fill          *types.Fill
}

// ApplyExecutionEvent folds a lifecycle event into the order's guarded
// state. Duplicate deliveries (same coid + event id) are no-ops, so any
// number of replays leaves executed_qty, fills, and status identical to a
// single delivery.
func (r *Router) ApplyExecutionEvent(ev ExecutionEvent) error {
	seen, err := r.guard.SeenEvent(ev.ClientOrderID + ":" + ev.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	result := &types.OrderResult{
		ClientOrderID: ev.ClientOrderID,
		Status:        ev.Status,
		ExecutedQty:   ev.ExecutedQty,
		CummQuoteCost: ev.CummQuoteCost,
	}
	if prev, ok := r.guard.CachedResult(ev.ClientOrderID); ok {
		result.OrderID = prev.OrderID
		result.Fills = prev.Fills
	}
	if ev.Fill != nil {
		result.Fills = append(result.Fills, *ev.Fill)
	}

	if _, err := r.guard.MarkStatus(ev.ClientOrderID, ev.Status, r.cfg.ResultTTL, result); err != nil {
		return err
	}
	return nil
}
