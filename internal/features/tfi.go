package features

import (
	"math"

	"aurora-core/pkg/types"
)

// TradeWindow is a bounded FIFO of recent trades for one symbol. Trades
// are evicted when they fall outside the time horizon or when the count
// cap is exceeded, oldest first.
type TradeWindow struct {
	trades    []types.Trade
	maxTrades int
	horizonS  float64
}

// NewTradeWindow creates a window bounded by maxTrades and horizonS seconds.
func NewTradeWindow(maxTrades int, horizonS float64) *TradeWindow {
	return &TradeWindow{
		trades:    make([]types.Trade, 0, 128),
		maxTrades: maxTrades,
		horizonS:  horizonS,
	}
}

// Add appends trades and evicts entries outside the bounds. now is the
// current event time (normally the snapshot timestamp).
func (w *TradeWindow) Add(trades []types.Trade, now float64) {
	w.trades = append(w.trades, trades...)
	cutoff := now - w.horizonS
	first := 0
	for first < len(w.trades) && w.trades[first].Timestamp <= cutoff {
		first++
	}
	if over := len(w.trades) - first - w.maxTrades; over > 0 {
		first += over
	}
	if first > 0 {
		w.trades = append(w.trades[:0], w.trades[first:]...)
	}
}

// Len returns the number of buffered trades.
func (w *TradeWindow) Len() int { return len(w.trades) }

// buySellVolumes sums BUY and SELL volume over trades in (now−windowS, now].
func (w *TradeWindow) buySellVolumes(now, windowS float64) (buy, sell float64) {
	cutoff := now - windowS
	for _, tr := range w.trades {
		if tr.Timestamp <= cutoff || tr.Timestamp > now {
			continue
		}
		if tr.Side == types.BUY {
			buy += tr.Size
		} else {
			sell += tr.Size
		}
	}
	return buy, sell
}

// TFI returns the trade-flow imbalance Σ(+size for BUY, −size for SELL)
// over the rolling window (now−windowS, now].
func (w *TradeWindow) TFI(now, windowS float64) float64 {
	buy, sell := w.buySellVolumes(now, windowS)
	return buy - sell
}

// VPINLike returns |B−S|/(B+S) over the rolling window, 0 for an empty
// window. Always in [0, 1].
func (w *TradeWindow) VPINLike(now, windowS float64) float64 {
	buy, sell := w.buySellVolumes(now, windowS)
	total := buy + sell
	if total <= 0 {
		return 0
	}
	return math.Abs(buy-sell) / total
}

// VPINBucketed partitions buffered trades by cumulative volume into buckets
// of size bucketV, computes |B_i−S_i|/V per complete bucket, and averages
// over the last maxBuckets complete buckets. The partial final bucket is
// ignored. Returns 0 when no bucket completes.
func (w *TradeWindow) VPINBucketed(bucketV float64, maxBuckets int) float64 {
	if bucketV <= 0 || maxBuckets <= 0 {
		return 0
	}
	var imbalances []float64
	var bucketBuy, bucketSell, filled float64
	for _, tr := range w.trades {
		remaining := tr.Size
		for remaining > 0 {
			room := bucketV - filled
			take := math.Min(remaining, room)
			if tr.Side == types.BUY {
				bucketBuy += take
			} else {
				bucketSell += take
			}
			filled += take
			remaining -= take
			if filled >= bucketV {
				imbalances = append(imbalances, math.Abs(bucketBuy-bucketSell)/bucketV)
				bucketBuy, bucketSell, filled = 0, 0, 0
			}
		}
	}
	if len(imbalances) == 0 {
		return 0
	}
	if len(imbalances) > maxBuckets {
		imbalances = imbalances[len(imbalances)-maxBuckets:]
	}
	s := 0.0
	for _, v := range imbalances {
		s += v
	}
	return s / float64(len(imbalances))
}
