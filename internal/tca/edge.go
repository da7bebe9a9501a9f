// Package tca implements the transaction-cost-analysis edge budget: the
// expected-return gate that sits between the calibrated probability and the
// governance layer. All monetary quantities are in basis points.
package tca

import (
	"fmt"
	"math"

	"aurora-core/pkg/types"
)

// Config tunes the expected-return gate.
type Config struct {
	PiMinBps      float64 // minimum expected profit to enter (default 0.5)
	KappaBpsPerMs float64 // latency penalty coefficient (default 0.1)
	DeltaPStar    float64 // safety buffer on the p* threshold (default 0.02)
}

func (c Config) withDefaults() Config {
	if c.PiMinBps == 0 {
		c.PiMinBps = 0.5
	}
	if c.KappaBpsPerMs == 0 {
		c.KappaBpsPerMs = 0.1
	}
	if c.DeltaPStar == 0 {
		c.DeltaPStar = 0.02
	}
	return c
}

// ExpectedPnL returns E[Π] = p·G − (1−p)·L − c in bps.
func ExpectedPnL(p, gain, loss, cost float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("probability %v out of [0,1]", p)
	}
	if gain < 0 || loss < 0 {
		return 0, fmt.Errorf("gain and loss must be non-negative")
	}
	return p*gain - (1-p)*loss - cost, nil
}

// PStarThreshold returns the minimal entry probability
// p* = (1 + c′)/(1 + r) + δ, clamped to [0, 1].
func PStarThreshold(r, cPrime, delta float64) (float64, error) {
	if r <= 0 {
		return 0, fmt.Errorf("payoff ratio must be > 0")
	}
	if cPrime < 0 {
		return 0, fmt.Errorf("normalized cost must be ≥ 0")
	}
	base := (1+cPrime)/(1+r) + math.Max(0, delta)
	return math.Min(1, math.Max(0, base)), nil
}

// ApplyLatencyPenalty degrades the edge by κ·ℓ.
func ApplyLatencyPenalty(edgeBps, kappaBpsPerMs, latencyMs float64) float64 {
	return edgeBps - kappaBpsPerMs*math.Max(0, latencyMs)
}

// Report is the gate outcome with its inputs, for decision logs.
type Report struct {
	ExpectedPiBps     float64
	PStar             float64
	GateOK            bool
	Edge0Bps          float64
	LatencyPenaltyBps float64
	Breakdown         *types.EdgeBreakdown
}

// Evaluate runs the expected-return gate: p against p*, and the
// latency-degraded edge against the minimum profit threshold.
// r is the payoff ratio G/L, costBps the total cost in bps.
func Evaluate(cfg Config, p, r, costBps, latencyMs float64, breakdown *types.EdgeBreakdown) (Report, error) {
	cfg = cfg.withDefaults()

	cPrime := math.Inf(1)
	if r > 0 {
		cPrime = costBps / r
	}
	pStar, err := PStarThreshold(r, cPrime, cfg.DeltaPStar)
	if err != nil {
		return Report{}, err
	}

	// Normalize L = 1 so the edge is expressed per unit of risk.
	edge0, err := ExpectedPnL(p, r, 1, costBps)
	if err != nil {
		return Report{}, err
	}
	penalty := cfg.KappaBpsPerMs * math.Max(0, latencyMs)
	edgeFinal := edge0 - penalty

	return Report{
		ExpectedPiBps:     edgeFinal,
		PStar:             pStar,
		GateOK:            p >= pStar && edgeFinal >= cfg.PiMinBps,
		Edge0Bps:          edge0,
		LatencyPenaltyBps: penalty,
		Breakdown:         breakdown,
	}, nil
}
