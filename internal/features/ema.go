package features

import "math"

// EMA is an event-time exponential moving average parameterized by
// half-life. The first observation sets the value directly; afterwards
// state := w·state + (1−w)·x with w = exp(−ln2·Δt/H).
type EMA struct {
	halfLifeS float64
	value     float64
	lastTS    float64
	primed    bool
}

// NewEMA creates an EMA with the given half-life in seconds.
func NewEMA(halfLifeS float64) *EMA {
	return &EMA{halfLifeS: halfLifeS}
}

// Update folds x observed at event-time ts into the average and returns
// the new value. Non-increasing timestamps contribute with Δt = 0.
func (e *EMA) Update(x, ts float64) float64 {
	if !e.primed {
		e.value = x
		e.lastTS = ts
		e.primed = true
		return e.value
	}
	dt := ts - e.lastTS
	if dt < 0 {
		dt = 0
	}
	lam := math.Ln2 / math.Max(1e-9, e.halfLifeS)
	w := math.Exp(-lam * dt)
	e.value = w*e.value + (1-w)*x
	e.lastTS = ts
	return e.value
}

// Value returns the current average (0 before the first update).
func (e *EMA) Value() float64 { return e.value }
