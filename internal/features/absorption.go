package features

import (
	"math"

	"aurora-core/pkg/types"
)

const rateEps = 1e-12

// AbsorptionStream decomposes best-quote queue dynamics between consecutive
// snapshots into market-order takes, cancellations, and replenishment, and
// maintains event-time EMA rates (volume per second) for each.
//
// When the best price is unchanged, a negative queue delta is attributed
// first to market orders on that side (bounded by the traded volume since
// the previous snapshot) and the residual to cancels; a positive delta is
// replenishment. A price step away from the book leaves the vanished queue
// unattributed; a step into the book counts the new queue as replenishment.
type AbsorptionStream struct {
	hl float64

	primed bool
	lastTS float64
	bidP   float64
	askP   float64
	bidQ1  float64
	askQ1  float64

	sellMORate    *EMA // hits bid
	buyMORate     *EMA // hits ask
	cancelBid     *EMA
	cancelAsk     *EMA
	replenishBid  *EMA
	replenishAsk  *EMA
}

// NewAbsorptionStream creates a stream with the given EMA half-life.
func NewAbsorptionStream(emaHalfLifeS float64) *AbsorptionStream {
	return &AbsorptionStream{
		hl:           emaHalfLifeS,
		sellMORate:   NewEMA(emaHalfLifeS),
		buyMORate:    NewEMA(emaHalfLifeS),
		cancelBid:    NewEMA(emaHalfLifeS),
		cancelAsk:    NewEMA(emaHalfLifeS),
		replenishBid: NewEMA(emaHalfLifeS),
		replenishAsk: NewEMA(emaHalfLifeS),
	}
}

func sumTradesAfter(trades []types.Trade, side types.Side, after float64) float64 {
	s := 0.0
	for _, tr := range trades {
		if tr.Timestamp <= after {
			continue
		}
		if tr.Side == side {
			s += tr.Size
		}
	}
	return s
}

// Update folds a snapshot into the stream and returns the current feature
// map. The first snapshot only initializes state.
func (a *AbsorptionStream) Update(snap types.MarketSnapshot) map[string]float64 {
	ts := snap.Timestamp
	if !a.primed {
		a.primed = true
		a.lastTS = ts
		a.bidP, a.askP = snap.BidPrice, snap.AskPrice
		a.bidQ1, a.askQ1 = snap.BestBidVolume(), snap.BestAskVolume()
		return a.features()
	}

	dt := math.Max(1e-6, ts-a.lastTS)
	bidQ1, askQ1 := snap.BestBidVolume(), snap.BestAskVolume()

	sellMO := sumTradesAfter(snap.Trades, types.SELL, a.lastTS)
	buyMO := sumTradesAfter(snap.Trades, types.BUY, a.lastTS)

	var cancelBid, replBid, moToBid float64
	if snap.BidPrice == a.bidP {
		dq := bidQ1 - a.bidQ1
		if dq < -rateEps {
			removal := -dq
			moToBid = math.Min(removal, sellMO)
			cancelBid = math.Max(0, removal-moToBid)
		} else if dq > rateEps {
			replBid = dq
		}
	} else if snap.BidPrice > a.bidP {
		// bid stepped up: new best with fresh size
		replBid = bidQ1
	}
	// bid stepped down: depletion at previous best, not attributed

	var cancelAsk, replAsk, moToAsk float64
	if snap.AskPrice == a.askP {
		dq := askQ1 - a.askQ1
		if dq < -rateEps {
			removal := -dq
			moToAsk = math.Min(removal, buyMO)
			cancelAsk = math.Max(0, removal-moToAsk)
		} else if dq > rateEps {
			replAsk = dq
		}
	} else if snap.AskPrice < a.askP {
		replAsk = askQ1
	}

	a.sellMORate.Update(moToBid/dt, ts)
	a.buyMORate.Update(moToAsk/dt, ts)
	a.cancelBid.Update(cancelBid/dt, ts)
	a.cancelAsk.Update(cancelAsk/dt, ts)
	a.replenishBid.Update(replBid/dt, ts)
	a.replenishAsk.Update(replAsk/dt, ts)

	a.lastTS = ts
	a.bidP, a.askP = snap.BidPrice, snap.AskPrice
	a.bidQ1, a.askQ1 = bidQ1, askQ1

	return a.features()
}

func (a *AbsorptionStream) features() map[string]float64 {
	remBid := a.sellMORate.Value() + a.cancelBid.Value()
	remAsk := a.buyMORate.Value() + a.cancelAsk.Value()

	absBid, absAsk := 0.0, 0.0
	if remBid > 0 {
		absBid = a.sellMORate.Value() / remBid
	}
	if remAsk > 0 {
		absAsk = a.buyMORate.Value() / remAsk
	}

	ttd := func(q, rem, repl float64) float64 {
		drain := rem - repl
		if drain <= rateEps {
			return math.Inf(1)
		}
		return math.Max(0, q) / math.Max(rateEps, drain)
	}

	return map[string]float64{
		"rate_sell_mo_hit_bid": a.sellMORate.Value(),
		"rate_buy_mo_hit_ask":  a.buyMORate.Value(),
		"rate_cancel_bid":      a.cancelBid.Value(),
		"rate_cancel_ask":      a.cancelAsk.Value(),
		"rate_replenish_bid":   a.replenishBid.Value(),
		"rate_replenish_ask":   a.replenishAsk.Value(),

		"absorption_frac_bid": absBid,
		"absorption_frac_ask": absAsk,
		"resilience_bid":      a.replenishBid.Value() / math.Max(rateEps, remBid),
		"resilience_ask":      a.replenishAsk.Value() / math.Max(rateEps, remAsk),
		"pressure_bid":        (a.sellMORate.Value() - a.replenishBid.Value()) / math.Max(rateEps, remBid),
		"pressure_ask":        (a.buyMORate.Value() - a.replenishAsk.Value()) / math.Max(rateEps, remAsk),

		"ttd_bid_s": ttd(a.bidQ1, remBid, a.replenishBid.Value()),
		"ttd_ask_s": ttd(a.askQ1, remAsk, a.replenishAsk.Value()),
	}
}

// EstimateQueueAhead estimates the queue ahead of a new limit order resting
// at the current best on the given side. With horizonS > 0 the expected
// replenishment over the horizon is added: q_ahead ≈ q_best + rate·H.
func (a *AbsorptionStream) EstimateQueueAhead(side types.Side, horizonS float64) float64 {
	h := math.Max(0, horizonS)
	if side == types.BUY {
		return math.Max(0, a.askQ1) + a.replenishAsk.Value()*h
	}
	return math.Max(0, a.bidQ1) + a.replenishBid.Value()*h
}
