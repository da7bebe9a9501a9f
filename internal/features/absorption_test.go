package features

import (
	"math"
	"testing"

	"aurora-core/pkg/types"
)

func TestAbsorptionTradeVsCancel(t *testing.T) {
	t.Parallel()
	a := NewAbsorptionStream(2.0)

	a.Update(snap(0, 99, 100, []float64{10}, []float64{10}))

	// Best bid queue drops 10 → 4 with 4 units of SELL volume: 4 attributed
	// to market orders, 2 to cancels.
	a.Update(snap(1, 99, 100, []float64{4}, []float64{10},
		trade(0.5, 4, types.SELL)))

	f := a.features()
	if f["rate_sell_mo_hit_bid"] <= 0 {
		t.Error("expected positive sell MO rate at bid")
	}
	if f["rate_cancel_bid"] <= 0 {
		t.Error("expected positive cancel rate at bid")
	}
	if f["rate_sell_mo_hit_bid"] <= f["rate_cancel_bid"] {
		t.Errorf("MO rate %v should dominate cancel rate %v (4 vs 2 units)",
			f["rate_sell_mo_hit_bid"], f["rate_cancel_bid"])
	}
	if got := f["absorption_frac_bid"]; got < 0 || got > 1 {
		t.Errorf("absorption_frac_bid = %v out of [0,1]", got)
	}
}

func TestAbsorptionReplenishment(t *testing.T) {
	t.Parallel()
	a := NewAbsorptionStream(2.0)
	a.Update(snap(0, 99, 100, []float64{5}, []float64{5}))
	a.Update(snap(1, 99, 100, []float64{9}, []float64{5}))

	f := a.features()
	if f["rate_replenish_bid"] <= 0 {
		t.Error("expected positive replenish rate after queue growth")
	}
	if f["rate_cancel_bid"] != 0 || f["rate_sell_mo_hit_bid"] != 0 {
		t.Error("growth must not register removals")
	}
}

func TestAbsorptionPriceStep(t *testing.T) {
	t.Parallel()
	a := NewAbsorptionStream(2.0)
	a.Update(snap(0, 99, 100, []float64{5}, []float64{5}))

	// Bid steps up: the new queue counts as replenishment.
	a.Update(snap(1, 99.5, 100, []float64{7}, []float64{5}))
	f := a.features()
	if f["rate_replenish_bid"] <= 0 {
		t.Error("bid step up should count new queue as replenishment")
	}

	// Ask steps up (away): depletion is unattributed — no removal rates.
	b := NewAbsorptionStream(2.0)
	b.Update(snap(0, 99, 100, []float64{5}, []float64{5}))
	b.Update(snap(1, 99, 100.5, []float64{5}, []float64{3}))
	fb := b.features()
	if fb["rate_cancel_ask"] != 0 || fb["rate_buy_mo_hit_ask"] != 0 {
		t.Error("quote stepping away must leave removal unattributed")
	}
}

func TestTTDInfiniteWhenNoDrain(t *testing.T) {
	t.Parallel()
	a := NewAbsorptionStream(2.0)
	a.Update(snap(0, 99, 100, []float64{5}, []float64{5}))
	f := a.features()
	if !math.IsInf(f["ttd_bid_s"], 1) {
		t.Errorf("ttd with zero drain = %v, want +Inf", f["ttd_bid_s"])
	}
}

func TestEstimateQueueAhead(t *testing.T) {
	t.Parallel()
	a := NewAbsorptionStream(2.0)
	a.Update(snap(0, 99, 100, []float64{5}, []float64{8}))
	if got := a.EstimateQueueAhead(types.BUY, 0); got != 8 {
		t.Errorf("queue ahead for BUY = %v, want best ask size 8", got)
	}
	if got := a.EstimateQueueAhead(types.SELL, 0); got != 5 {
		t.Errorf("queue ahead for SELL = %v, want best bid size 5", got)
	}
}
