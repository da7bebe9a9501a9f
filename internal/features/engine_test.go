package features

import (
	"errors"
	"math"
	"testing"

	"aurora-core/pkg/types"
)

func TestEngineUpdateEmitsCoreFeatures(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{})

	f, err := e.Update("BTCUSDT", snap(1, 99, 100, []float64{5, 2}, []float64{3, 1},
		trade(0.5, 2, types.BUY)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	for _, name := range []string{
		"obi_l1", "obi_lk", "depth_ratio", "mid", "spread", "spread_bps",
		"micro_price", "tfi", "vpin_like", "vpin_bucketed",
		"absorption_frac_bid", "ttd_bid_s",
	} {
		if _, ok := f[name]; !ok {
			t.Errorf("feature %q missing from map", name)
		}
	}
	if f["mid"] != 99.5 {
		t.Errorf("mid = %v, want 99.5", f["mid"])
	}
}

func TestEngineRejectsOutOfOrder(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{})

	if _, err := e.Update("ETHUSDT", snap(10, 99, 100, []float64{1}, []float64{1})); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, err := e.Update("ETHUSDT", snap(9, 99, 100, []float64{1}, []float64{1}))
	if !errors.Is(err, ErrOutOfOrderSnapshot) {
		t.Errorf("expected ErrOutOfOrderSnapshot, got %v", err)
	}

	// A different symbol is an independent shard: same timestamp is fine.
	if _, err := e.Update("SOLUSDT", snap(9, 10, 11, []float64{1}, []float64{1})); err != nil {
		t.Errorf("independent symbol rejected: %v", err)
	}
}

func TestEngineNeverEmitsNaNOrInf(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{})

	// Degenerate books: empty sides, zero mid, no trades.
	snaps := []types.MarketSnapshot{
		snap(1, 0, 0, nil, nil),
		snap(2, 99, 100, []float64{0}, []float64{0}),
		snap(3, 99, 100, []float64{5}, nil),
		snap(4, 99, 100, nil, []float64{5}),
	}
	for _, s := range snaps {
		f, err := e.Update("XRPUSDT", s)
		if err != nil {
			t.Fatalf("Update(%v): %v", s.Timestamp, err)
		}
		for name, v := range f {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("ts=%v feature %q = %v", s.Timestamp, name, v)
			}
		}
	}
}

func TestEngineEmptySidePolicies(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{})
	f, err := e.Update("BTCUSDT", snap(1, 99, 100, nil, nil))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f["obi_l1"] != 0 || f["depth_ratio"] != 0 {
		t.Errorf("empty book: obi=%v depth_ratio=%v, want 0, 0", f["obi_l1"], f["depth_ratio"])
	}
	if f["micro_price"] != 99.5 {
		t.Errorf("empty book micro_price = %v, want mid", f["micro_price"])
	}

	// One side structurally empty: same neutral policy.
	f, err = e.Update("BTCUSDT", snap(2, 99, 100, []float64{5}, nil))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f["obi_l1"] != 0 || f["depth_ratio"] != 0 || f["micro_price"] != 99.5 {
		t.Errorf("one-sided book: obi=%v ratio=%v micro=%v, want neutral",
			f["obi_l1"], f["depth_ratio"], f["micro_price"])
	}
}
