// Package features implements the streaming microstructure feature engine:
// order-book imbalance and depth metrics, trade-flow imbalance and VPIN,
// and the absorption/replenishment decomposition at best quotes.
//
// All estimators are event-time driven and look-ahead free: a feature at
// snapshot t depends only on data with timestamps ≤ t. Stateless book
// metrics live in this file; the stateful streams are in tfi.go and
// absorption.go, composed per symbol by Engine.
package features

import (
	"math"

	"aurora-core/pkg/types"
)

func sumLevels(vols []float64, k int) float64 {
	if k > len(vols) {
		k = len(vols)
	}
	s := 0.0
	for i := 0; i < k; i++ {
		s += vols[i]
	}
	return s
}

// OBI returns the signed order-book imbalance over the first k levels:
// (bid − ask) / (bid + ask). A side with no levels at all yields 0, as does
// a zero denominator. Always in [−1, 1].
func OBI(snap types.MarketSnapshot, k int) float64 {
	if len(snap.BidVolumes) == 0 || len(snap.AskVolumes) == 0 {
		return 0
	}
	bid := sumLevels(snap.BidVolumes, k)
	ask := sumLevels(snap.AskVolumes, k)
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return (bid - ask) / total
}

// DepthRatio returns bid_sum / (bid_sum + ask_sum) over the first k levels,
// 0 when either side has no levels or the denominator is 0. Always in [0, 1].
func DepthRatio(snap types.MarketSnapshot, k int) float64 {
	if len(snap.BidVolumes) == 0 || len(snap.AskVolumes) == 0 {
		return 0
	}
	bid := sumLevels(snap.BidVolumes, k)
	ask := sumLevels(snap.AskVolumes, k)
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return bid / total
}

// DepthBid returns the summed bid volume over the first k levels.
func DepthBid(snap types.MarketSnapshot, k int) float64 { return sumLevels(snap.BidVolumes, k) }

// DepthAsk returns the summed ask volume over the first k levels.
func DepthAsk(snap types.MarketSnapshot, k int) float64 { return sumLevels(snap.AskVolumes, k) }

// MicroPrice returns the inventory-weighted mid over the first k levels:
// (bid·ask_vol + ask·bid_vol) / (bid_vol + ask_vol). Equals mid when both
// volumes are 0. Always within [bid, ask].
func MicroPrice(snap types.MarketSnapshot, k int) float64 {
	if len(snap.BidVolumes) == 0 || len(snap.AskVolumes) == 0 {
		return snap.Mid()
	}
	bidVol := sumLevels(snap.BidVolumes, k)
	askVol := sumLevels(snap.AskVolumes, k)
	if bidVol+askVol <= 0 {
		return snap.Mid()
	}
	mp := (snap.BidPrice*askVol + snap.AskPrice*bidVol) / (bidVol + askVol)
	// Guard against float drift at the boundaries.
	return math.Min(snap.AskPrice, math.Max(snap.BidPrice, mp))
}
