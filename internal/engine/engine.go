// Package engine is the central orchestrator of the trading core.
//
// It wires together all subsystems along the per-tick data flow:
//
//	snapshot → feature engine → score → TCA gate → static gates →
//	order request → idempotency guard → exchange backend
//
// and keeps the SPRT stream fed with every score so the governance layer
// can decide whether the configured edge is real. One goroutine consumes
// the market-data feed; a second runs the idempotency retention sweep.
//
// Lifecycle: New() → Start() → [runs until signal] → Stop()
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"aurora-core/internal/config"
	"aurora-core/internal/exchange"
	"aurora-core/internal/features"
	"aurora-core/internal/governance"
	"aurora-core/internal/idem"
	"aurora-core/internal/ingest"
	"aurora-core/internal/observability"
	"aurora-core/internal/signal"
	"aurora-core/internal/tca"
	"aurora-core/pkg/types"
)

// sweepInterval is how often the retention sweep runs.
const sweepInterval = time.Hour

// Decision is the full per-tick outcome, kept for decision logs and tests.
type Decision struct {
	Symbol   string
	Features map[string]float64
	Score    signal.ScoreOutput
	TCA      tca.Report
	Gate     governance.GateResponse
	SPRT     governance.Result
	Result   *types.OrderResult // nil when no order was routed
}

// snapshotSource abstracts the market-data feed for testing.
type snapshotSource interface {
	Run(ctx context.Context) error
	Snapshots() <-chan ingest.SymbolSnapshot
}

// volEstimator keeps an EMA of squared mid returns in bps per symbol.
type volEstimator struct {
	prevMid float64
	ema     *features.EMA
}

// Engine orchestrates all components of the decision/execution pipeline.
type Engine struct {
	cfg      config.Config
	feats    *features.Engine
	leadlag  *signal.CrossAssetHY
	score    *signal.ScoreModel
	gates    *governance.Gates
	sprt     *governance.CompositeSPRT
	ledger   *governance.AlphaLedger
	store    idem.Store
	guard    *idem.Guard
	router   *exchange.Router
	shadow   *exchange.Shadow // nil in live mode
	book     *PositionBook
	sink     observability.Sink
	logger   *slog.Logger
	source   snapshotSource

	mu          sync.Mutex
	vol         map[string]*volEstimator
	stats       types.SubmitStats
	lastArrival map[string]time.Time
	latencyMs   float64

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates and wires all engine components.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	sink := observability.NewLogSink(logger)

	store, err := idem.Open(idem.Options{
		Backend:   cfg.Idempotency.Backend,
		Path:      cfg.Idempotency.Path,
		Retention: time.Duration(cfg.Idempotency.RetentionDays) * 24 * time.Hour,
	}, logger)
	if err != nil {
		return nil, err
	}
	guard := idem.NewGuard(store, sink)

	var backend exchange.Backend
	var shadow *exchange.Shadow
	if cfg.Exchange.Mode == "live" && !cfg.DryRun {
		auth, err := exchange.NewAuth(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
		if err != nil {
			store.Close()
			return nil, err
		}
		backend = exchange.NewClient(cfg.Exchange.BaseURL, auth, cfg.Exchange.Timeout)
	} else {
		filters := make(map[string]types.SymbolFilters, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			filters[sym] = types.DefaultFilters(sym)
		}
		shadow = exchange.NewShadow(exchange.ShadowConfig{SlippageBps: cfg.Exchange.SlippageBps}, filters, logger)
		backend = shadow
	}

	router := exchange.NewRouter(context.Background(), exchange.RouterConfig{},
		backend, guard, cfg.Symbols, logger)

	ledger := governance.NewAlphaLedger(cfg.SPRT.TotalAlpha, governance.AlphaPolicy(cfg.SPRT.AlphaPolicy))
	ledger.SetExpectedTests(cfg.SPRT.ExpectedNTests)

	gatesCfg := governance.GatesConfig{
		SpreadBpsLimit:         cfg.Gates.SpreadBpsLimit,
		LatencyMsLimit:         cfg.Gates.LatencyMsLimit,
		VolGuardStdBps:         cfg.Gates.VolGuardStdBps,
		DailyDDLimitPct:        cfg.Gates.DailyDDLimitPct,
		CVaRLimit:              cfg.Gates.CVaRLimit,
		MaxConcurrentPositions: cfg.Gates.MaxConcurrentPositions,
		RejectStormPct:         cfg.Gates.RejectStormPct,
		RejectStormCooldown:    time.Duration(cfg.Gates.RejectStormCooldownS) * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg: cfg,
		feats: features.NewEngine(features.Config{
			OBILevels:    cfg.Features.OBILevels,
			WindowS:      cfg.Features.WindowS,
			BucketVolume: cfg.Features.BucketVolume,
			VPINBuckets:  cfg.Features.VPINBuckets,
			MaxTrades:    cfg.Features.MaxTrades,
			EMAHalfLifeS: cfg.Features.EMAHalfLifeS,
		}),
		leadlag: signal.NewCrossAssetHY(cfg.LeadLag.WindowS, cfg.LeadLag.MaxPoints),
		score: signal.NewScoreModel(cfg.Scoring.Weights, cfg.Scoring.Intercept,
			cfg.Scoring.Gamma, cfg.Scoring.UseCrossAsset, nil),
		gates: governance.NewGates(gatesCfg, sink, logger),
		sprt: governance.NewCompositeSPRT(governance.SPRTConfig{
			Alpha: cfg.SPRT.Alpha, Beta: cfg.SPRT.Beta,
		}, ledger, sink),
		ledger:      ledger,
		store:       store,
		guard:       guard,
		router:      router,
		shadow:      shadow,
		book:        NewPositionBook(),
		sink:        sink,
		logger:      logger.With("component", "engine"),
		vol:         make(map[string]*volEstimator),
		lastArrival: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// SetSource attaches the market-data feed consumed by Start.
func (e *Engine) SetSource(src snapshotSource) { e.source = src }

// Start launches the feed consumer and the retention sweeper.
func (e *Engine) Start() error {
	g, ctx := errgroup.WithContext(e.ctx)
	e.group = g

	if e.source != nil {
		g.Go(func() error { return e.source.Run(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case s := <-e.source.Snapshots():
					if _, err := e.ProcessSnapshot(s.Symbol, s.Snapshot); err != nil {
						e.logger.Warn("snapshot rejected", "symbol", s.Symbol, "error", err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := e.store.CleanupExpired()
				if err != nil {
					e.logger.Error("retention sweep failed", "error", err)
					continue
				}
				if n > 0 {
					e.logger.Info("retention sweep", "deleted", n)
				}
			}
		}
	})
	return nil
}

// Stop cancels all goroutines and closes the store.
func (e *Engine) Stop() {
	e.cancel()
	if e.group != nil {
		_ = e.group.Wait()
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("store close failed", "error", err)
	}
}

// updateVol folds the snapshot mid into the symbol's volatility estimate
// and returns the current std in bps. Caller holds e.mu.
func (e *Engine) updateVol(symbol string, snap types.MarketSnapshot) float64 {
	v, ok := e.vol[symbol]
	if !ok {
		v = &volEstimator{ema: features.NewEMA(e.cfg.Features.EMAHalfLifeS * 10)}
		e.vol[symbol] = v
	}
	mid := snap.Mid()
	if v.prevMid > 0 && mid > 0 {
		retBps := 1e4 * (mid - v.prevMid) / v.prevMid
		v.ema.Update(retBps*retBps, snap.Timestamp)
	}
	v.prevMid = mid
	return math.Sqrt(v.ema.Value())
}

// riskState assembles the static-gate input for one symbol tick.
func (e *Engine) riskState(symbol string, snap types.MarketSnapshot, volStdBps float64) types.RiskState {
	e.mu.Lock()
	stats := e.stats
	latency := e.latencyMs
	last, seenBefore := e.lastArrival[symbol]
	now := time.Now()
	e.lastArrival[symbol] = now
	e.mu.Unlock()

	staleS := e.cfg.Trading.StaleBookS
	if staleS <= 0 {
		staleS = 5
	}

	spreadLimit := e.cfg.Gates.SpreadBpsLimit
	return types.RiskState{
		PnlTodayPct:   e.pnlTodayPct(),
		SpreadBps:     snap.SpreadBps(),
		LatencyMs:     latency,
		VolStdBps:     volStdBps,
		OpenPositions: e.book.OpenPositions(),
		RecentStats:   stats,
		DQ: types.DQFlags{
			StaleBook:      seenBefore && now.Sub(last) > time.Duration(staleS*float64(time.Second)),
			CrossedBook:    snap.AskPrice < snap.BidPrice,
			AbnormalSpread: spreadLimit > 0 && snap.SpreadBps() > 5*spreadLimit,
		},
		Timestamp: now,
	}
}

func (e *Engine) pnlTodayPct() float64 {
	equity := e.cfg.Trading.EquityUSD
	if equity <= 0 {
		equity = 10000
	}
	return 100 * e.book.TotalPnL() / equity
}

// ProcessSnapshot drives the full pipeline for one snapshot and returns
// the decision record. Out-of-order snapshots are rejected unchanged.
func (e *Engine) ProcessSnapshot(symbol string, snap types.MarketSnapshot) (*Decision, error) {
	started := time.Now()

	featureMap, err := e.feats.Update(symbol, snap)
	if err != nil {
		return nil, err
	}

	e.leadlag.AddSnapshotMid(symbol, snap)
	e.book.MarkToMarket(symbol, snap.Mid())
	if e.shadow != nil {
		e.shadow.SetReferenceMid(symbol, decimal.NewFromFloat(snap.Mid()))
	}
	e.router.SetReferenceMid(symbol, decimal.NewFromFloat(snap.Mid()))

	e.mu.Lock()
	volStdBps := e.updateVol(symbol, snap)
	e.mu.Unlock()

	cross := e.crossInput(symbol, snap.Timestamp)
	score := e.score.Score(featureMap, cross)

	dec := &Decision{Symbol: symbol, Features: featureMap, Score: score}

	// Feed the edge hypothesis stream regardless of the gate outcome: the
	// SPRT needs denials' evidence too.
	h0, h1 := e.hypotheses()
	dec.SPRT = e.sprt.Update("edge:"+symbol, score.Score, h0, h1, 1.0)

	report, err := tca.Evaluate(tca.Config{
		PiMinBps:      e.cfg.TCA.PiMinBps,
		KappaBpsPerMs: e.cfg.TCA.KappaBpsPerMs,
		DeltaPStar:    e.cfg.TCA.DeltaPStar,
	}, score.P, e.cfg.TCA.PayoffRatio, e.cfg.TCA.CostBps, e.latencySnapshot(), nil)
	if err != nil {
		return dec, err
	}
	dec.TCA = report
	if !report.GateOK {
		e.sink.Emit(observability.AuroraExpectedReturnLow, map[string]any{
			"symbol": symbol, "p": score.P, "p_star": report.PStar,
			"expected_pi_bps": report.ExpectedPiBps,
		})
		e.observeLatency(started)
		return dec, nil
	}
	e.sink.Emit(observability.AuroraExpectedReturnAccept, map[string]any{
		"symbol": symbol, "p": score.P, "expected_pi_bps": report.ExpectedPiBps,
	})

	side := types.BUY
	if score.Score < 0 {
		side = types.SELL
	}
	intent := governance.Intent{
		"symbol": symbol, "side": string(side), "p": score.P, "score": score.Score,
	}

	dec.Gate = e.gates.Approve(intent, e.riskState(symbol, snap, volStdBps))
	if !dec.Gate.Allow {
		e.observeLatency(started)
		return dec, nil
	}

	result, err := e.router.PlaceOrderIdempotent(e.ctx, types.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        types.OrderTypeMarket,
		Quantity:    decimal.NewFromFloat(e.cfg.Trading.OrderQty),
		TimeInForce: types.TIFGTC,
	})
	e.recordSubmit(result, err)
	e.observeLatency(started)
	if err != nil {
		return dec, err
	}
	dec.Result = result

	for _, fill := range result.Fills {
		e.book.OnFill(symbol, side, fill.Qty, fill.Price)
	}
	return dec, nil
}

// hypotheses builds the test pair for the edge stream: H0 a centered unit
// Gaussian, H1 a composite of a shifted Gaussian and a heavy-tailed
// component parameterized by the configured tail threshold.
func (e *Engine) hypotheses() (governance.Hypothesis, governance.Hypothesis) {
	h0 := governance.Bound{Model: governance.Gaussian{}, Params: governance.Params{Mu: 0, Sigma: 1}}

	tail := e.cfg.SPRT.TailThreshold
	if tail <= 1 {
		tail = 2.5
	}
	h1 := governance.NewComposite([]governance.Component{
		{Model: governance.Gaussian{}, Params: governance.Params{Mu: 0.5, Sigma: 1}, Weight: 0.9},
		{
			Model:  governance.SubExponential{TailIndex: tail, BootstrapSamples: e.cfg.SPRT.BootstrapSamples},
			Params: governance.Params{Location: 0, Scale: 1, Shape: 1 / tail},
			Weight: 0.1,
		},
	})
	return h0, h1
}

// crossInput resolves the cross-asset term against the configured
// reference symbol at the best lag.
func (e *Engine) crossInput(symbol string, nowTS float64) signal.CrossInput {
	ref := e.cfg.Scoring.RefSymbol
	if !e.cfg.Scoring.UseCrossAsset || e.cfg.Scoring.Gamma == 0 || ref == "" || ref == symbol {
		return signal.CrossInput{}
	}
	scan := e.leadlag.LeadLagScan(symbol, ref, e.cfg.LeadLag.Lags, nowTS)
	if scan.BestCorr == 0 {
		return signal.CrossInput{}
	}
	m := e.leadlag.Metrics(symbol, ref, nowTS, scan.BestLag)
	// The lagged reference return is not observable directly here; the
	// best-lag correlation stands in for it, and the beta is taken at the best lag.
	return signal.CrossInput{Beta: m.BetaXOnY, Return: scan.BestCorr, Valid: true}
}

func (e *Engine) recordSubmit(result *types.OrderResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Total++
	if err != nil || (result != nil && result.Status == types.StatusRejected) {
		e.stats.Rejects++
	}
}

func (e *Engine) observeLatency(started time.Time) {
	ms := float64(time.Since(started).Microseconds()) / 1e3
	e.mu.Lock()
	// light smoothing so a single slow tick doesn't trip the gate
	e.latencyMs = 0.8*e.latencyMs + 0.2*ms
	e.mu.Unlock()
}

func (e *Engine) latencySnapshot() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latencyMs
}

// ApplyExecutionEvent forwards an exchange callback through the router's
// de-duplicating path.
func (e *Engine) ApplyExecutionEvent(ev exchange.ExecutionEvent) error {
	return e.router.ApplyExecutionEvent(ev)
}

// Guard exposes the idempotency guard for operational tooling.
func (e *Engine) Guard() *idem.Guard { return e.guard }

// Router exposes the order router.
func (e *Engine) Router() *exchange.Router { return e.router }

// Gates exposes the static gate layer (halt/resume control).
func (e *Engine) Gates() *governance.Gates { return e.gates }
