// Package signal maps microstructure features to a calibrated probability
// of profitable execution, and estimates cross-asset lead–lag dependencies
// on asynchronous tick streams via the Hayashi–Yoshida covariance.
package signal

import (
	"math"
	"sync"

	"aurora-core/pkg/types"
)

type pricePoint struct {
	t    float64
	logP float64
}

// interval is one log-return over (t0, t1].
type interval struct {
	t0, t1, r float64
}

// HYMetrics is the result of a Hayashi–Yoshida query for a symbol pair.
type HYMetrics struct {
	Cov      float64
	Corr     float64
	VarX     float64
	VarY     float64
	BetaXOnY float64 // Cov/Var(Y)
	BetaYOnX float64 // Cov/Var(X)
}

// LeadLagResult is the outcome of a lag-grid scan.
type LeadLagResult struct {
	CorrZero  float64
	CovZero   float64
	BetaXOnY  float64
	CorrByLag map[float64]float64
	BestLag   float64
	BestCorr  float64
}

// CrossAssetHY buffers ticks per symbol and computes Hayashi–Yoshida
// covariance/correlation on demand over a rolling event-time window.
// Positive lag means Y is shifted forward by τ, estimating Corr(X_t, Y_{t+τ}).
type CrossAssetHY struct {
	mu        sync.Mutex
	windowS   float64
	maxPoints int
	buf       map[string][]pricePoint
}

// NewCrossAssetHY creates an estimator with the given rolling window and a
// per-symbol point cap (oldest evicted first).
func NewCrossAssetHY(windowS float64, maxPoints int) *CrossAssetHY {
	if windowS <= 0 {
		windowS = 60
	}
	if maxPoints <= 0 {
		maxPoints = 8000
	}
	return &CrossAssetHY{windowS: windowS, maxPoints: maxPoints, buf: make(map[string][]pricePoint)}
}

// AddTick records a price observation. Non-positive prices are ignored.
func (h *CrossAssetHY) AddTick(symbol string, ts, price float64) {
	if price <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	pts := append(h.buf[symbol], pricePoint{t: ts, logP: math.Log(price)})
	if over := len(pts) - h.maxPoints; over > 0 {
		pts = pts[over:]
	}
	cutoff := ts - h.windowS
	first := 0
	for first < len(pts) && pts[first].t < cutoff {
		first++
	}
	h.buf[symbol] = pts[first:]
}

// AddSnapshotMid records a snapshot's mid price as the tick proxy.
func (h *CrossAssetHY) AddSnapshotMid(symbol string, snap types.MarketSnapshot) {
	h.AddTick(symbol, snap.Timestamp, snap.Mid())
}

func buildReturns(pts []pricePoint) []interval {
	if len(pts) < 2 {
		return nil
	}
	out := make([]interval, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		if pts[i].t > pts[i-1].t {
			out = append(out, interval{t0: pts[i-1].t, t1: pts[i].t, r: pts[i].logP - pts[i-1].logP})
		}
	}
	return out
}

// hyCov computes the HY covariance plus realized variances from ordered
// return-interval lists: cov = Σ r_i·s_j over overlapping intervals, found
// with a two-pointer sweep.
func hyCov(rx, ry []interval) (cov, varX, varY float64) {
	for _, iv := range rx {
		varX += iv.r * iv.r
	}
	for _, iv := range ry {
		varY += iv.r * iv.r
	}
	i, j := 0, 0
	for i < len(rx) && j < len(ry) {
		a, b := rx[i], ry[j]
		if math.Min(a.t1, b.t1) > math.Max(a.t0, b.t0) {
			cov += a.r * b.r
		}
		if a.t1 <= b.t1 {
			i++
		} else {
			j++
		}
	}
	return cov, varX, varY
}

func shiftReturns(r []interval, lag float64) []interval {
	if math.Abs(lag) < 1e-15 {
		return r
	}
	out := make([]interval, len(r))
	for i, iv := range r {
		out[i] = interval{t0: iv.t0 + lag, t1: iv.t1 + lag, r: iv.r}
	}
	return out
}

func (h *CrossAssetHY) returnsFor(symbol string, nowTS float64) []interval {
	pts := h.buf[symbol]
	if len(pts) == 0 {
		return nil
	}
	if nowTS == 0 {
		nowTS = pts[len(pts)-1].t
	}
	cutoff := nowTS - h.windowS
	inWindow := pts[:0:0]
	for _, p := range pts {
		if p.t >= cutoff {
			inWindow = append(inWindow, p)
		}
	}
	return buildReturns(inWindow)
}

// Metrics computes HY covariance, correlation, and betas for (X, Y) over
// the rolling window, with Y shifted forward by lagS.
func (h *CrossAssetHY) Metrics(symX, symY string, nowTS, lagS float64) HYMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	rx := h.returnsFor(symX, nowTS)
	ry := shiftReturns(h.returnsFor(symY, nowTS), lagS)
	cov, varX, varY := hyCov(rx, ry)

	m := HYMetrics{Cov: cov, VarX: varX, VarY: varY}
	if varX > 0 && varY > 0 {
		m.Corr = cov / math.Sqrt(varX*varY)
	}
	if varY > 0 {
		m.BetaXOnY = cov / varY
	}
	if varX > 0 {
		m.BetaYOnX = cov / varX
	}
	return m
}

// LeadLagScan sweeps the lag grid and reports the lag with the largest
// |corr| together with the full correlation vector. A nil grid uses a
// symmetric default up to ±2s.
func (h *CrossAssetHY) LeadLagScan(symX, symY string, lags []float64, nowTS float64) LeadLagResult {
	if len(lags) == 0 {
		lags = []float64{-2, -1, -0.5, -0.25, 0, 0.25, 0.5, 1, 2}
	}
	res := LeadLagResult{CorrByLag: make(map[float64]float64, len(lags))}
	for _, tau := range lags {
		m := h.Metrics(symX, symY, nowTS, tau)
		res.CorrByLag[tau] = m.Corr
		if math.Abs(m.Corr) > math.Abs(res.BestCorr) {
			res.BestCorr = m.Corr
			res.BestLag = tau
		}
	}
	base := h.Metrics(symX, symY, nowTS, 0)
	res.CorrZero = base.Corr
	res.CovZero = base.Cov
	res.BetaXOnY = base.BetaXOnY
	return res
}
