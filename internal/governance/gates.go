package governance

import (
	"log/slog"
	"sync"
	"time"

	"aurora-core/internal/observability"
	"aurora-core/pkg/types"
)

// GatesConfig sets the static gate thresholds and the kill-switch behavior.
type GatesConfig struct {
	SpreadBpsLimit         float64
	LatencyMsLimit         float64
	VolGuardStdBps         float64
	DailyDDLimitPct        float64
	CVaRLimit              float64
	MaxConcurrentPositions int
	RejectStormPct         float64
	RejectStormCooldown    time.Duration
}

// Intent is the opaque trade intent carried through the gate response so
// callers can correlate denials with the triggering order.
type Intent map[string]any

// GateResponse is the structured approve/deny outcome. Code is one of the
// stable event codes; Reasons explains the trip in short tokens.
type GateResponse struct {
	Allow   bool
	Code    string
	Reasons []string
	Intent  Intent
}

// Gates enforces the static risk gates independently of the SPRT. Rules
// are evaluated in a fixed order; the first match denies and its code is
// returned.
type Gates struct {
	cfg    GatesConfig
	sink   observability.Sink
	logger *slog.Logger

	mu        sync.Mutex
	haltUntil time.Time
	now       func() time.Time
}

// NewGates creates the static gate layer. sink may be nil.
func NewGates(cfg GatesConfig, sink observability.Sink, logger *slog.Logger) *Gates {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Gates{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With("component", "gates"),
		now:    time.Now,
	}
}

// Halted reports whether the kill switch is currently armed.
func (g *Gates) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.haltUntil)
}

// Resume clears the halt immediately.
func (g *Gates) Resume() {
	g.mu.Lock()
	wasHalted := g.now().Before(g.haltUntil)
	g.haltUntil = time.Time{}
	g.mu.Unlock()
	if wasHalted {
		g.sink.Emit(observability.AuroraResume, nil)
		g.logger.Info("kill switch cleared")
	}
}

// maybeHalt arms the kill switch when the reject rate reaches the storm
// threshold or a critical DQ flag is set. The halt extends, never shortens.
func (g *Gates) maybeHalt(rejectRate float64, criticalDQ bool) {
	if !criticalDQ && rejectRate < g.cfg.RejectStormPct {
		return
	}
	g.mu.Lock()
	until := g.now().Add(g.cfg.RejectStormCooldown)
	armed := false
	if until.After(g.haltUntil) {
		g.haltUntil = until
		armed = true
	}
	g.mu.Unlock()
	if armed {
		g.sink.Emit(observability.AuroraHalt, map[string]any{
			"reject_rate": rejectRate, "critical_dq": criticalDQ, "until": until,
		})
		g.logger.Error("KILL SWITCH", "reject_rate", rejectRate,
			"critical_dq", criticalDQ, "cooldown_until", until)
	}
}

func deny(code string, reason string, intent Intent) GateResponse {
	return GateResponse{Allow: false, Code: code, Reasons: []string{reason}, Intent: intent}
}

// Approve evaluates all gates against the risk state in the documented
// order: kill switch, data quality, daily drawdown, CVaR, spread, latency,
// volatility, position count. The first matching rule wins.
func (g *Gates) Approve(intent Intent, rs types.RiskState) GateResponse {
	rejectRate := 0.0
	if rs.RecentStats.Total > 0 {
		rejectRate = float64(rs.RecentStats.Rejects) / float64(rs.RecentStats.Total)
	}
	criticalDQ := rs.DQ.StaleBook || rs.DQ.CrossedBook
	g.maybeHalt(rejectRate, criticalDQ)

	if g.Halted() {
		return deny(observability.AuroraHalt, "killswitch_active", intent)
	}

	if rs.DQ.StaleBook {
		return deny(observability.DQStaleBook, "stale_book", intent)
	}
	if rs.DQ.CrossedBook {
		return deny(observability.DQCrossedBook, "crossed_book", intent)
	}
	if rs.DQ.AbnormalSpread {
		return deny(observability.DQAbnormalSpread, "abnormal_spread", intent)
	}

	if rs.PnlTodayPct < -abs(g.cfg.DailyDDLimitPct) {
		return deny(observability.RiskDenyDrawdown, "daily_dd", intent)
	}
	if rs.CVaRHist != nil && *rs.CVaRHist < -abs(g.cfg.CVaRLimit) {
		return deny(observability.RiskDenyCVaR, "cvar_limit", intent)
	}

	if rs.SpreadBps > g.cfg.SpreadBpsLimit {
		return deny(observability.SpreadGuardTrip, "spread_limit", intent)
	}
	if rs.LatencyMs > g.cfg.LatencyMsLimit {
		return deny(observability.LatencyGuardTrip, "latency_limit", intent)
	}
	if rs.VolStdBps > g.cfg.VolGuardStdBps {
		return deny(observability.VolatilityGuardTrip, "volatility_limit", intent)
	}

	if g.cfg.MaxConcurrentPositions > 0 && rs.OpenPositions >= g.cfg.MaxConcurrentPositions {
		return deny(observability.RiskDenyPosLimit, "pos_limit", intent)
	}

	return GateResponse{Allow: true, Intent: intent}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
