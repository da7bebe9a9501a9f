package features

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"aurora-core/pkg/types"
)

// ErrOutOfOrderSnapshot is returned when a snapshot's timestamp precedes
// the previous snapshot for the same symbol. Out-of-order data is rejected,
// never silently reordered.
var ErrOutOfOrderSnapshot = errors.New("snapshot timestamp went backwards")

// ttdCapS bounds the time-to-depletion proxy in emitted feature maps.
const ttdCapS = 1e9

// Config tunes the feature engine. Zero values are replaced by defaults.
type Config struct {
	OBILevels     int     // depth for obi_lk / depth aggregates (default 5)
	WindowS       float64 // TFI/VPIN rolling window seconds (default 60)
	BucketVolume  float64 // VPIN bucket size in base units (default 50)
	VPINBuckets   int     // complete buckets averaged (default 20)
	MaxTrades     int     // per-symbol trade buffer cap (default 10000)
	EMAHalfLifeS  float64 // absorption EMA half-life (default 2)
}

func (c Config) withDefaults() Config {
	if c.OBILevels <= 0 {
		c.OBILevels = 5
	}
	if c.WindowS <= 0 {
		c.WindowS = 60
	}
	if c.BucketVolume <= 0 {
		c.BucketVolume = 50
	}
	if c.VPINBuckets <= 0 {
		c.VPINBuckets = 20
	}
	if c.MaxTrades <= 0 {
		c.MaxTrades = 10000
	}
	if c.EMAHalfLifeS <= 0 {
		c.EMAHalfLifeS = 2
	}
	return c
}

// shard holds the streaming state for one symbol. Each shard has its own
// mutex; updates within a shard are strictly serialized and event-time
// ordered.
type shard struct {
	mu         sync.Mutex
	lastTS     float64
	primed     bool
	trades     *TradeWindow
	absorption *AbsorptionStream
}

// Engine transforms a per-symbol stream of MarketSnapshots into dense
// feature maps. State is sharded by symbol; a shard is created on first
// observation and lives for the session.
type Engine struct {
	cfg Config

	mu     sync.RWMutex
	shards map[string]*shard
}

// NewEngine creates a feature engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		shards: make(map[string]*shard),
	}
}

func (e *Engine) shardFor(symbol string) *shard {
	e.mu.RLock()
	sh, ok := e.shards[symbol]
	e.mu.RUnlock()
	if ok {
		return sh
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if sh, ok = e.shards[symbol]; ok {
		return sh
	}
	sh = &shard{
		trades:     NewTradeWindow(e.cfg.MaxTrades, 10*e.cfg.WindowS),
		absorption: NewAbsorptionStream(e.cfg.EMAHalfLifeS),
	}
	e.shards[symbol] = sh
	return sh
}

// Update folds a snapshot into the symbol's streaming state and returns the
// feature map. Snapshots must arrive in non-decreasing event-time order per
// symbol; violations return ErrOutOfOrderSnapshot and leave state untouched.
//
// NaN/Inf values in any computed feature are replaced by 0 and the emitted
// map carries feature_degraded = 1.
func (e *Engine) Update(symbol string, snap types.MarketSnapshot) (map[string]float64, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot for %s: %w", symbol, err)
	}

	sh := e.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.primed && snap.Timestamp < sh.lastTS {
		return nil, fmt.Errorf("%s: %w (%.6f < %.6f)", symbol, ErrOutOfOrderSnapshot, snap.Timestamp, sh.lastTS)
	}

	sh.trades.Add(snap.Trades, snap.Timestamp)

	k := e.cfg.OBILevels
	out := map[string]float64{
		"obi_l1":       OBI(snap, 1),
		"obi_lk":       OBI(snap, k),
		"depth_bid_lk": DepthBid(snap, k),
		"depth_ask_lk": DepthAsk(snap, k),
		"depth_ratio":  DepthRatio(snap, k),
		"mid":          snap.Mid(),
		"spread":       snap.Spread(),
		"spread_bps":   snap.SpreadBps(),
		"micro_price":  MicroPrice(snap, k),

		"tfi":           sh.trades.TFI(snap.Timestamp, e.cfg.WindowS),
		"vpin_like":     sh.trades.VPINLike(snap.Timestamp, e.cfg.WindowS),
		"vpin_bucketed": sh.trades.VPINBucketed(e.cfg.BucketVolume, e.cfg.VPINBuckets),
	}
	for name, v := range sh.absorption.Update(snap) {
		out[name] = v
	}

	// ttd is +Inf by definition when the queue never drains; cap it to a
	// finite horizon so emitted maps stay Inf-free without flagging.
	for _, name := range []string{"ttd_bid_s", "ttd_ask_s"} {
		if math.IsInf(out[name], 1) || out[name] > ttdCapS {
			out[name] = ttdCapS
		}
	}

	degraded := false
	for name, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[name] = 0
			degraded = true
		}
	}
	if degraded {
		out["feature_degraded"] = 1
	}

	sh.primed = true
	sh.lastTS = snap.Timestamp
	return out, nil
}

// QueueAhead exposes the per-symbol queue-ahead estimate for sizing resting
// orders. Returns 0 for an unseen symbol.
func (e *Engine) QueueAhead(symbol string, side types.Side, horizonS float64) float64 {
	e.mu.RLock()
	sh, ok := e.shards[symbol]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.absorption.EstimateQueueAhead(side, horizonS)
}
