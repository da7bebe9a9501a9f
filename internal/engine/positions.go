package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

// Position is the current holding in one symbol.
type Position struct {
	Qty           float64 // signed: positive long, negative short
	AvgEntry      float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// PositionBook tracks per-symbol positions from fills and marks them
// against the latest mid. Thread-safe.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*Position)}
}

// OnFill applies an execution. Reducing or flipping a position realizes
// PnL against the average entry.
func (b *PositionBook) OnFill(symbol string, side types.Side, qty, price decimal.Decimal) {
	q, _ := qty.Float64()
	p, _ := price.Float64()
	if q <= 0 || p <= 0 {
		return
	}
	signed := q
	if side == types.SELL {
		signed = -q
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if !ok {
		pos = &Position{}
		b.positions[symbol] = pos
	}

	switch {
	case pos.Qty == 0 || (pos.Qty > 0) == (signed > 0):
		// extending: volume-weighted average entry
		total := pos.Qty + signed
		pos.AvgEntry = (pos.AvgEntry*abs(pos.Qty) + p*q) / (abs(pos.Qty) + q)
		pos.Qty = total
	default:
		closed := min(abs(pos.Qty), q)
		direction := 1.0
		if pos.Qty < 0 {
			direction = -1
		}
		pos.RealizedPnL += direction * closed * (p - pos.AvgEntry)
		pos.Qty += signed
		if pos.Qty == 0 {
			pos.AvgEntry = 0
		} else if (pos.Qty > 0) != (direction > 0) {
			// flipped: remainder opens at the fill price
			pos.AvgEntry = p
		}
	}
}

// MarkToMarket refreshes unrealized PnL for a symbol at the given mid.
func (b *PositionBook) MarkToMarket(symbol string, mid float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[symbol]; ok && pos.Qty != 0 && mid > 0 {
		pos.UnrealizedPnL = pos.Qty * (mid - pos.AvgEntry)
	}
}

// OpenPositions counts symbols with a nonzero holding.
func (b *PositionBook) OpenPositions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, pos := range b.positions {
		if pos.Qty != 0 {
			n++
		}
	}
	return n
}

// TotalPnL sums realized plus unrealized PnL across all symbols.
func (b *PositionBook) TotalPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0.0
	for _, pos := range b.positions {
		total += pos.RealizedPnL + pos.UnrealizedPnL
	}
	return total
}

// Get returns a copy of the position for a symbol.
func (b *PositionBook) Get(symbol string) Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos, ok := b.positions[symbol]; ok {
		return *pos
	}
	return Position{}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
