package governance

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"aurora-core/internal/observability"
	"aurora-core/pkg/types"
)

func testGatesConfig() GatesConfig {
	return GatesConfig{
		SpreadBpsLimit:         50,
		LatencyMsLimit:         500,
		VolGuardStdBps:         300,
		DailyDDLimitPct:        5,
		CVaRLimit:              2,
		MaxConcurrentPositions: 3,
		RejectStormPct:         0.5,
		RejectStormCooldown:    time.Minute,
	}
}

func newTestGates(sink observability.Sink) *Gates {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewGates(testGatesConfig(), sink, logger)
}

func TestApproveCleanState(t *testing.T) {
	t.Parallel()
	g := newTestGates(nil)
	resp := g.Approve(Intent{"symbol": "BTCUSDT"}, types.RiskState{
		SpreadBps: 10, LatencyMs: 50,
	})
	if !resp.Allow {
		t.Fatalf("clean state denied: %+v", resp)
	}
}

func TestGatePrecedence(t *testing.T) {
	t.Parallel()
	cvar := -5.0

	tests := []struct {
		name string
		rs   types.RiskState
		code string
	}{
		{
			// Spread and latency within limits: drawdown alone denies.
			name: "drawdown with clean microstructure",
			rs:   types.RiskState{PnlTodayPct: -6, SpreadBps: 10, LatencyMs: 50},
			code: observability.RiskDenyDrawdown,
		},
		{
			name: "drawdown precedes cvar",
			rs:   types.RiskState{PnlTodayPct: -6, CVaRHist: &cvar},
			code: observability.RiskDenyDrawdown,
		},
		{
			name: "cvar precedes spread",
			rs:   types.RiskState{CVaRHist: &cvar, SpreadBps: 100},
			code: observability.RiskDenyCVaR,
		},
		{
			name: "spread precedes latency",
			rs:   types.RiskState{SpreadBps: 100, LatencyMs: 1000},
			code: observability.SpreadGuardTrip,
		},
		{
			name: "latency precedes volatility",
			rs:   types.RiskState{LatencyMs: 1000, VolStdBps: 400},
			code: observability.LatencyGuardTrip,
		},
		{
			name: "volatility precedes positions",
			rs:   types.RiskState{VolStdBps: 400, OpenPositions: 5},
			code: observability.VolatilityGuardTrip,
		},
		{
			name: "position limit",
			rs:   types.RiskState{OpenPositions: 3},
			code: observability.RiskDenyPosLimit,
		},
		{
			name: "dq abnormal spread precedes drawdown",
			rs:   types.RiskState{DQ: types.DQFlags{AbnormalSpread: true}, PnlTodayPct: -6},
			code: observability.DQAbnormalSpread,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGates(nil)
			resp := g.Approve(nil, tt.rs)
			if resp.Allow {
				t.Fatal("expected denial")
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestKillSwitchOnRejectStorm(t *testing.T) {
	t.Parallel()
	sink := &observability.RecordSink{}
	g := newTestGates(sink)

	rs := types.RiskState{RecentStats: types.SubmitStats{Total: 10, Rejects: 6}}
	resp := g.Approve(nil, rs)
	if resp.Allow || resp.Code != observability.AuroraHalt {
		t.Fatalf("storm state: got %+v, want AURORA.HALT", resp)
	}
	if sink.Count(observability.AuroraHalt) == 0 {
		t.Error("expected AURORA.HALT event")
	}

	// A subsequent clean request is still halted during cooldown.
	resp = g.Approve(nil, types.RiskState{})
	if resp.Allow || resp.Code != observability.AuroraHalt {
		t.Errorf("cooldown should still deny: %+v", resp)
	}

	// Resume clears the halt.
	g.Resume()
	if resp := g.Approve(nil, types.RiskState{}); !resp.Allow {
		t.Errorf("after resume: %+v", resp)
	}
	if sink.Count(observability.AuroraResume) != 1 {
		t.Error("expected AURORA.RESUME event")
	}
}

func TestKillSwitchOnCriticalDQ(t *testing.T) {
	t.Parallel()
	g := newTestGates(nil)
	resp := g.Approve(nil, types.RiskState{DQ: types.DQFlags{CrossedBook: true}})
	if resp.Allow || resp.Code != observability.AuroraHalt {
		t.Errorf("critical DQ must arm the kill switch, got %+v", resp)
	}
}

func TestKillSwitchCooldownExpires(t *testing.T) {
	t.Parallel()
	g := newTestGates(nil)
	base := time.Now()
	g.now = func() time.Time { return base }

	g.Approve(nil, types.RiskState{DQ: types.DQFlags{StaleBook: true}})
	if !g.Halted() {
		t.Fatal("expected halt")
	}

	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	if g.Halted() {
		t.Error("halt should expire after cooldown")
	}
}

func TestNilCVaRSkipsGate(t *testing.T) {
	t.Parallel()
	g := newTestGates(nil)
	if resp := g.Approve(nil, types.RiskState{CVaRHist: nil}); !resp.Allow {
		t.Errorf("nil CVaR should skip the gate: %+v", resp)
	}
}
