// Package ingest implements the WebSocket market-data feed that turns venue
// depth and trade streams into MarketSnapshot values for the engine.
//
// One connection carries all subscribed symbols (combined stream). Trades
// arriving between depth updates are buffered per symbol and attached to
// the next snapshot, so each snapshot carries exactly the trades observed
// since the previous one. The feed auto-reconnects with exponential backoff
// (1s → 30s max); a read deadline detects silent server failures.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"aurora-core/pkg/types"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	snapshotBuffer   = 256
)

// SymbolSnapshot pairs a snapshot with its symbol for channel delivery.
type SymbolSnapshot struct {
	Symbol   string
	Snapshot types.MarketSnapshot
}

// Feed manages the market-data WebSocket connection: lifecycle, message
// routing, and automatic reconnection.
type Feed struct {
	url     string
	symbols []string
	snapCh  chan SymbolSnapshot
	logger  *slog.Logger

	// pending trades per symbol since the last depth update
	pending map[string][]types.Trade
}

// NewFeed creates a feed for the given combined-stream endpoint.
func NewFeed(wsURL string, symbols []string, logger *slog.Logger) *Feed {
	return &Feed{
		url:     wsURL,
		symbols: symbols,
		snapCh:  make(chan SymbolSnapshot, snapshotBuffer),
		logger:  logger.With("component", "feed"),
		pending: make(map[string][]types.Trade),
	}
}

// Snapshots returns the channel of assembled market snapshots.
func (f *Feed) Snapshots() <-chan SymbolSnapshot { return f.snapCh }

// streamURL builds the combined-stream URL for all subscribed symbols.
func (f *Feed) streamURL() string {
	streams := make([]string, 0, 2*len(f.symbols))
	for _, s := range f.symbols {
		ls := strings.ToLower(s)
		streams = append(streams, ls+"@depth20@100ms", ls+"@aggTrade")
	}
	return f.url + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects and processes messages until ctx is cancelled, reconnecting
// on any failure.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.logger.Info("feed connected", "symbols", f.symbols)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(msg)
	}
}

// combined is the envelope of a combined-stream message.
type combined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthEvent is a partial book snapshot (price/size string pairs).
type depthEvent struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// tradeEvent is an aggregate trade.
type tradeEvent struct {
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTs  int64  `json:"T"`
	IsMaker  bool   `json:"m"` // buyer is maker ⇒ aggressor sold
}

func (f *Feed) handleMessage(msg []byte) {
	var env combined
	if err := json.Unmarshal(msg, &env); err != nil {
		f.logger.Debug("unparseable message", "error", err)
		return
	}
	parts := strings.SplitN(env.Stream, "@", 2)
	if len(parts) != 2 {
		return
	}
	symbol := strings.ToUpper(parts[0])

	switch {
	case strings.HasPrefix(parts[1], "depth"):
		f.handleDepth(symbol, env.Data)
	case strings.HasPrefix(parts[1], "aggTrade"):
		f.handleTrade(symbol, env.Data)
	}
}

func (f *Feed) handleTrade(symbol string, data json.RawMessage) {
	var ev tradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	price, err1 := strconv.ParseFloat(ev.Price, 64)
	size, err2 := strconv.ParseFloat(ev.Quantity, 64)
	if err1 != nil || err2 != nil || price <= 0 {
		return
	}
	side := types.BUY
	if ev.IsMaker {
		side = types.SELL
	}
	f.pending[symbol] = append(f.pending[symbol], types.Trade{
		Timestamp: float64(ev.TradeTs) / 1e3,
		Price:     price,
		Size:      size,
		Side:      side,
	})
}

func (f *Feed) handleDepth(symbol string, data json.RawMessage) {
	var ev depthEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	snap, ok := assembleSnapshot(ev, f.pending[symbol], time.Now())
	if !ok {
		return
	}
	f.pending[symbol] = nil

	select {
	case f.snapCh <- SymbolSnapshot{Symbol: symbol, Snapshot: snap}:
	default:
		f.logger.Warn("snapshot channel full, dropping", "symbol", symbol)
	}
}

// assembleSnapshot converts a depth event plus buffered trades into a
// MarketSnapshot. Trades are sorted by the venue already; the snapshot
// timestamp is clamped to be ≥ the last trade's.
func assembleSnapshot(ev depthEvent, trades []types.Trade, now time.Time) (types.MarketSnapshot, bool) {
	if len(ev.Bids) == 0 || len(ev.Asks) == 0 {
		return types.MarketSnapshot{}, false
	}

	parseLevel := func(level []string) (price, size float64, ok bool) {
		if len(level) < 2 {
			return 0, 0, false
		}
		p, err1 := strconv.ParseFloat(level[0], 64)
		s, err2 := strconv.ParseFloat(level[1], 64)
		return p, s, err1 == nil && err2 == nil
	}

	bidPrice, _, ok := parseLevel(ev.Bids[0])
	if !ok {
		return types.MarketSnapshot{}, false
	}
	askPrice, _, ok := parseLevel(ev.Asks[0])
	if !ok {
		return types.MarketSnapshot{}, false
	}

	bids := make([]float64, 0, len(ev.Bids))
	for _, lvl := range ev.Bids {
		if _, size, ok := parseLevel(lvl); ok {
			bids = append(bids, size)
		}
	}
	asks := make([]float64, 0, len(ev.Asks))
	for _, lvl := range ev.Asks {
		if _, size, ok := parseLevel(lvl); ok {
			asks = append(asks, size)
		}
	}

	ts := float64(now.UnixNano()) / 1e9
	for _, tr := range trades {
		if tr.Timestamp > ts {
			ts = tr.Timestamp
		}
	}

	return types.MarketSnapshot{
		Timestamp:  ts,
		BidPrice:   bidPrice,
		AskPrice:   askPrice,
		BidVolumes: bids,
		AskVolumes: asks,
		Trades:     trades,
	}, true
}
