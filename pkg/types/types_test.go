package types

import (
	"testing"
)

func TestSnapshotDerived(t *testing.T) {
	t.Parallel()
	s := MarketSnapshot{
		Timestamp:  100,
		BidPrice:   99.5,
		AskPrice:   100.5,
		BidVolumes: []float64{5, 3},
		AskVolumes: []float64{4, 2},
	}
	if got := s.Mid(); got != 100 {
		t.Errorf("Mid = %v, want 100", got)
	}
	if got := s.Spread(); got != 1.0 {
		t.Errorf("Spread = %v, want 1.0", got)
	}
	if got := s.SpreadBps(); got != 100 {
		t.Errorf("SpreadBps = %v, want 100", got)
	}
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		snap    MarketSnapshot
		wantErr bool
	}{
		{
			name: "valid",
			snap: MarketSnapshot{Timestamp: 10, BidPrice: 99, AskPrice: 100,
				BidVolumes: []float64{1}, AskVolumes: []float64{1},
				Trades: []Trade{{Timestamp: 9, Price: 99.5, Size: 1, Side: BUY}}},
		},
		{
			name:    "crossed book",
			snap:    MarketSnapshot{Timestamp: 10, BidPrice: 101, AskPrice: 100},
			wantErr: true,
		},
		{
			name: "negative volume",
			snap: MarketSnapshot{Timestamp: 10, BidPrice: 99, AskPrice: 100,
				BidVolumes: []float64{-1}},
			wantErr: true,
		},
		{
			name: "trades out of order",
			snap: MarketSnapshot{Timestamp: 10, BidPrice: 99, AskPrice: 100,
				Trades: []Trade{{Timestamp: 9}, {Timestamp: 8}}},
			wantErr: true,
		},
		{
			name: "trade ahead of snapshot",
			snap: MarketSnapshot{Timestamp: 10, BidPrice: 99, AskPrice: 100,
				Trades: []Trade{{Timestamp: 11}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusMonotonicity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusPending, StatusAck, true},
		{StatusAck, StatusPartial, true},
		{StatusPartial, StatusFilled, true},
		{StatusAck, StatusCanceled, true},
		{StatusFilled, StatusFilled, true}, // idempotent terminal re-apply
		{StatusFilled, StatusAck, false},
		{StatusCanceled, StatusFilled, false},
		{StatusRejected, StatusPending, false},
		{StatusPartial, StatusAck, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s → %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestEdgeBreakdownNet(t *testing.T) {
	t.Parallel()
	e := EdgeBreakdown{RawEdgeBps: 10, FeesBps: 2, SlippageBps: 1, AdverseBps: 1.5, LatencyBps: 0.5, RebatesBps: 1}
	if got, want := e.NetEdgeBps(), 6.0; got != want {
		t.Errorf("NetEdgeBps = %v, want %v", got, want)
	}
}
