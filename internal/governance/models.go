// Package governance decides whether a stream of scores shows real edge.
//
// It combines a composite sequential probability ratio test (SPRT) over
// pluggable hypothesis models with a family-wise alpha-spending ledger, and
// an independent static-gate layer (spread, latency, volatility, drawdown,
// CVaR, position limits, kill switch) evaluated on live risk state.
package governance

import (
	"math"
	"math/rand"
	"sort"
)

// Params carries distribution parameters for the simple hypothesis models.
// Unused fields are ignored by each model.
type Params struct {
	Mu       float64
	Sigma    float64
	Nu       float64 // Student-t degrees of freedom
	Scale    float64
	Location float64
	Shape    float64 // GPD shape
}

// Stats holds sufficient statistics computed over an observation window.
type Stats struct {
	N          int
	Sum        float64
	SumSquares float64
	Mean       float64
	Var        float64

	// Tail diagnostics (sub-exponential model only).
	TailIndex    float64
	TailIndexLo  float64
	TailIndexHi  float64
	POTThreshold float64
	NExcesses    int
}

// Model is the single log-likelihood contract all hypothesis variants
// implement.
type Model interface {
	LogLikelihood(x float64, p Params) float64
	SufficientStatistics(xs []float64) Stats
}

// Hypothesis is a model bound to its parameters (or a composite mixture).
type Hypothesis interface {
	LogLikelihood(x float64) float64
}

// Bound pairs a Model with fixed parameters.
type Bound struct {
	Model  Model
	Params Params
}

func (b Bound) LogLikelihood(x float64) float64 { return b.Model.LogLikelihood(x, b.Params) }

// ————————————————————————————————————————————————————————————————————————
// Gaussian with known variance
// ————————————————————————————————————————————————————————————————————————

// Gaussian is the known-variance normal model.
type Gaussian struct{}

func (Gaussian) LogLikelihood(x float64, p Params) float64 {
	sigma := p.Sigma
	if sigma <= 0 {
		sigma = 1
	}
	z := (x - p.Mu) / sigma
	return -0.5*math.Log(2*math.Pi*sigma*sigma) - 0.5*z*z
}

func (Gaussian) SufficientStatistics(xs []float64) Stats {
	return basicStats(xs)
}

func basicStats(xs []float64) Stats {
	st := Stats{N: len(xs)}
	for _, x := range xs {
		st.Sum += x
		st.SumSquares += x * x
	}
	if st.N > 0 {
		st.Mean = st.Sum / float64(st.N)
	}
	if st.N > 1 {
		st.Var = (st.SumSquares - float64(st.N)*st.Mean*st.Mean) / float64(st.N-1)
		if st.Var < 0 {
			st.Var = 0
		}
	}
	return st
}

// ————————————————————————————————————————————————————————————————————————
// Student-t / GLR with unknown variance
// ————————————————————————————————————————————————————————————————————————

// StudentT models location with unknown scale via the t-distribution;
// location and scale are estimated from window sufficient statistics.
type StudentT struct{}

func (StudentT) LogLikelihood(x float64, p Params) float64 {
	nu := p.Nu
	if nu <= 0 {
		nu = 1
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	z := (x - p.Mu) / scale
	lg1, _ := math.Lgamma((nu + 1) / 2)
	lg2, _ := math.Lgamma(nu / 2)
	return lg1 - lg2 - 0.5*math.Log(math.Pi*nu*scale*scale) -
		(nu+1)/2*math.Log(1+z*z/nu)
}

func (StudentT) SufficientStatistics(xs []float64) Stats {
	return basicStats(xs)
}

// ————————————————————————————————————————————————————————————————————————
// Sub-exponential / GPD tails
// ————————————————————————————————————————————————————————————————————————

// SubExponential is the heavy-tail model: a generalized Pareto density with
// the left tail mirrored around the location. The tail index is estimated
// by a POT Hill estimator on the upper 25% of positive excesses above the
// 90th percentile; a bootstrap CI is produced by resampling.
type SubExponential struct {
	TailIndex        float64 // prior/fallback tail index (default 2.5)
	BootstrapSamples int     // resamples for the CI (default 1000)
	Seed             int64   // rng seed for reproducible CIs
}

func (m SubExponential) tailIndexDefault() float64 {
	if m.TailIndex > 0 {
		return m.TailIndex
	}
	return 2.5
}

func (m SubExponential) LogLikelihood(x float64, p Params) float64 {
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	shape := p.Shape

	// Mirror the left tail around the location.
	z := (x - p.Location) / scale
	if x < p.Location {
		z = (p.Location - x) / scale
	}

	if shape == 0 {
		return -math.Log(scale) - z
	}
	if 1+shape*z <= 0 {
		return math.Inf(-1)
	}
	return -math.Log(scale) - (1+1/shape)*math.Log(1+shape*z)
}

func (m SubExponential) SufficientStatistics(xs []float64) Stats {
	st := basicStats(xs)
	fallback := m.tailIndexDefault()
	st.TailIndex = fallback
	st.TailIndexLo = fallback
	st.TailIndexHi = fallback
	if st.N == 0 {
		return st
	}

	positive := xs[:0:0]
	for _, x := range xs {
		if x > 0 {
			positive = append(positive, x)
		}
	}
	if len(positive) < 10 {
		return st
	}

	sorted := append([]float64(nil), positive...)
	sort.Float64s(sorted)
	threshold := quantile(sorted, 0.90)
	st.POTThreshold = threshold

	var excesses []float64
	for _, x := range positive {
		if x > threshold {
			excesses = append(excesses, x-threshold)
		}
	}
	st.NExcesses = len(excesses)
	if len(excesses) <= 5 {
		return st
	}

	k := len(excesses) / 4
	if k < 1 {
		k = 1
	}
	if k <= 1 {
		return st
	}

	if hill := hillEstimate(excesses, k); hill > 0 {
		st.TailIndex = 1 / hill
		lo, hi := m.bootstrapTailCI(excesses, k)
		st.TailIndexLo, st.TailIndexHi = lo, hi
	}
	return st
}

// hillEstimate computes the Hill statistic over the top-k order statistics
// of already-positive excesses.
func hillEstimate(excesses []float64, k int) float64 {
	sorted := append([]float64(nil), excesses...)
	sort.Float64s(sorted)
	base := math.Log(sorted[len(sorted)-k])
	s := 0.0
	for _, x := range sorted[len(sorted)-k:] {
		s += math.Log(x) - base
	}
	return s / float64(k)
}

// bootstrapTailCI computes a 95% percentile bootstrap CI for the tail index.
func (m SubExponential) bootstrapTailCI(excesses []float64, k int) (lo, hi float64) {
	n := m.BootstrapSamples
	if n <= 0 {
		n = 1000
	}
	fallback := m.tailIndexDefault()
	if len(excesses) < k {
		return fallback, fallback
	}

	rng := rand.New(rand.NewSource(m.Seed + int64(len(excesses))))
	sample := make([]float64, len(excesses))
	var indices []float64
	for b := 0; b < n; b++ {
		for i := range sample {
			sample[i] = excesses[rng.Intn(len(excesses))]
		}
		if hill := hillEstimate(sample, k); hill > 0 {
			indices = append(indices, 1/hill)
		}
	}
	if len(indices) == 0 {
		return fallback, fallback
	}
	sort.Float64s(indices)
	return quantile(indices, 0.025), quantile(indices, 0.975)
}

// quantile interpolates the q-quantile of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}

// ————————————————————————————————————————————————————————————————————————
// Composite hypothesis
// ————————————————————————————————————————————————————————————————————————

// Component is one weighted member of a composite hypothesis.
type Component struct {
	Model  Model
	Params Params
	Weight float64
}

// Composite is a weighted mixture of hypothesis models; its likelihood is
// the log-sum-exp of the members. A component yielding −∞ contributes
// nothing and is effectively dropped.
type Composite struct {
	components []Component
	logWeights []float64
}

// NewComposite normalizes the component weights and returns the mixture.
func NewComposite(components []Component) *Composite {
	total := 0.0
	for _, c := range components {
		total += c.Weight
	}
	lw := make([]float64, len(components))
	for i, c := range components {
		if total > 0 && c.Weight > 0 {
			lw[i] = math.Log(c.Weight / total)
		} else {
			lw[i] = math.Inf(-1)
		}
	}
	return &Composite{components: components, logWeights: lw}
}

func (c *Composite) LogLikelihood(x float64) float64 {
	if len(c.components) == 0 {
		return math.Inf(-1)
	}
	lls := make([]float64, 0, len(c.components))
	maxLL := math.Inf(-1)
	for i, comp := range c.components {
		ll := comp.Model.LogLikelihood(x, comp.Params) + c.logWeights[i]
		lls = append(lls, ll)
		if ll > maxLL {
			maxLL = ll
		}
	}
	if math.IsInf(maxLL, -1) {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, ll := range lls {
		sum += math.Exp(ll - maxLL)
	}
	return maxLL + math.Log(sum)
}

// ————————————————————————————————————————————————————————————————————————
// Diagnostics
// ————————————————————————————————————————————————————————————————————————

// chiSquare1CDF is the CDF of the χ² distribution with one degree of
// freedom: F(x) = erf(√(x/2)).
func chiSquare1CDF(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Erf(math.Sqrt(x / 2))
}
