package governance

import (
	"math"
	"sync"

	"aurora-core/internal/observability"
)

// Decision is the outcome of one SPRT update.
type Decision string

const (
	DecisionNone     Decision = ""
	DecisionAcceptH0 Decision = "accept_h0"
	DecisionAcceptH1 Decision = "accept_h1"
)

// Result carries the decision and diagnostics of one SPRT update.
//
// PValue is the χ² asymptote of 2·|llr| and is diagnostic only — the
// decision is made exclusively by the llr crossing log_A or log_B.
type Result struct {
	Decision        Decision
	LLR             float64
	NSamples        int
	PValue          float64
	Confidence      float64
	LogA            float64
	LogB            float64
	AlphaSpent      float64
	BudgetExhausted bool
}

// testState is the per-test accumulator. The observation window is bounded;
// old samples are dropped FIFO once the cap is reached.
type testState struct {
	llr          float64
	n            int
	observations []float64
	lastDecision Decision
	closed       bool
}

// SPRTConfig tunes the composite SPRT.
type SPRTConfig struct {
	Alpha     float64 // type-I error (default 0.05)
	Beta      float64 // type-II error (default 0.20)
	WindowCap int     // bounded observation window per test (default 4096)
	PolicyID  string
}

func (c SPRTConfig) withDefaults() SPRTConfig {
	if c.Alpha <= 0 {
		c.Alpha = 0.05
	}
	if c.Beta <= 0 {
		c.Beta = 0.20
	}
	if c.WindowCap <= 0 {
		c.WindowCap = 4096
	}
	if c.PolicyID == "" {
		c.PolicyID = "default"
	}
	return c
}

// CompositeSPRT runs Wald sequential tests keyed by test id, charging
// terminal decisions against a shared alpha ledger. Updates within a single
// test id are serialized by the internal mutex.
type CompositeSPRT struct {
	cfg    SPRTConfig
	logA   float64
	logB   float64
	ledger *AlphaLedger
	sink   observability.Sink

	mu    sync.Mutex
	tests map[string]*testState
}

// NewCompositeSPRT creates a test runner. sink may be nil.
func NewCompositeSPRT(cfg SPRTConfig, ledger *AlphaLedger, sink observability.Sink) *CompositeSPRT {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &CompositeSPRT{
		cfg:    cfg,
		logA:   math.Log((1 - cfg.Beta) / cfg.Alpha),
		logB:   math.Log(cfg.Beta / (1 - cfg.Alpha)),
		ledger: ledger,
		sink:   sink,
	}
}

// Update folds one observation into the named test under hypotheses h0/h1
// and returns the decision state. A test that already reached a terminal
// decision keeps returning it without accumulating further evidence.
func (s *CompositeSPRT) Update(testID string, x float64, h0, h1 Hypothesis, weight float64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tests == nil {
		s.tests = make(map[string]*testState)
	}
	st, ok := s.tests[testID]
	if !ok {
		st = &testState{}
		s.tests[testID] = st
	}
	if st.closed {
		return s.result(st, st.lastDecision, 0, false)
	}

	llH0 := h0.LogLikelihood(x)
	llH1 := h1.LogLikelihood(x)
	if math.IsNaN(llH0) || math.IsNaN(llH1) ||
		(math.IsInf(llH0, -1) && math.IsInf(llH1, -1)) {
		s.sink.Emit(observability.SPRTError, map[string]any{
			"test_id": testID, "reason": "likelihood_undefined", "x": x,
		})
		return s.result(st, DecisionNone, 0, false)
	}

	st.n++
	st.observations = append(st.observations, x)
	if over := len(st.observations) - s.cfg.WindowCap; over > 0 {
		st.observations = st.observations[over:]
	}

	delta := llH1 - llH0
	// A one-sided −∞ drives the llr to the corresponding boundary rather
	// than poisoning the accumulator.
	switch {
	case math.IsInf(delta, 1):
		st.llr = s.logA
	case math.IsInf(delta, -1):
		st.llr = s.logB
	default:
		st.llr += weight * delta
	}

	decision := DecisionNone
	if st.llr >= s.logA {
		decision = DecisionAcceptH1
	} else if st.llr <= s.logB {
		decision = DecisionAcceptH0
	}

	if decision == DecisionNone {
		s.sink.Emit(observability.SPRTContinue, map[string]any{
			"test_id": testID, "llr": st.llr, "n": st.n,
		})
		return s.result(st, DecisionNone, 0, false)
	}

	alphaSpent := s.alphaSpent(st.llr, decision)
	entry := LedgerEntry{
		TestID:        testID,
		PolicyID:      s.cfg.PolicyID,
		AlphaSpent:    alphaSpent,
		Decision:      decision,
		LLR:           st.llr,
		NObservations: st.n,
		TestType:      "composite_sprt",
	}
	if alphaSpent > 0 && !s.ledger.Spend(&entry) {
		// Budget cannot cover the decision: report "cannot decide" and
		// keep the accumulated evidence.
		s.sink.Emit(observability.SPRTError, map[string]any{
			"test_id": testID, "reason": "budget_exhausted", "llr": st.llr,
		})
		return s.result(st, DecisionNone, 0, true)
	}

	alphaSpent = entry.AlphaSpent // actual charge after allowance clamp
	st.lastDecision = decision
	st.closed = true
	s.ledger.CloseTest(testID)

	code := observability.SPRTDecisionH0
	if decision == DecisionAcceptH1 {
		code = observability.SPRTDecisionH1
	}
	s.sink.Emit(code, map[string]any{
		"test_id":     testID,
		"llr":         st.llr,
		"n":           st.n,
		"log_a":       s.logA,
		"log_b":       s.logB,
		"alpha_spent": alphaSpent,
	})
	return s.result(st, decision, alphaSpent, false)
}

// alphaSpent bounds the charged fraction of α (or β) by the distance past
// the boundary: a decision barely past the line pays the most.
func (s *CompositeSPRT) alphaSpent(llr float64, decision Decision) float64 {
	if decision == DecisionAcceptH1 {
		if llr > s.logA {
			return math.Min(s.cfg.Alpha, s.cfg.Alpha*math.Exp(-(llr-s.logA)))
		}
		return s.cfg.Alpha * 0.1
	}
	if llr < s.logB {
		return math.Min(s.cfg.Beta, s.cfg.Beta*math.Exp(-(s.logB-llr)))
	}
	return s.cfg.Beta * 0.1
}

func (s *CompositeSPRT) result(st *testState, decision Decision, alphaSpent float64, exhausted bool) Result {
	return Result{
		Decision:        decision,
		LLR:             st.llr,
		NSamples:        st.n,
		PValue:          s.pValue(st),
		Confidence:      s.confidence(st),
		LogA:            s.logA,
		LogB:            s.logB,
		AlphaSpent:      alphaSpent,
		BudgetExhausted: exhausted,
	}
}

// pValue is the diagnostic χ²(1) asymptote of 2·|llr|. Never used for
// decisions.
func (s *CompositeSPRT) pValue(st *testState) float64 {
	if st.n < 2 {
		return 0.5
	}
	p := 1 - chiSquare1CDF(2*math.Abs(st.llr))
	return math.Max(1e-10, math.Min(1, p))
}

// confidence scales the distance from the boundaries into [0, 1].
func (s *CompositeSPRT) confidence(st *testState) float64 {
	if st.n < 2 {
		return 0
	}
	span := s.logA - s.logB
	if span <= 0 {
		return 0.5
	}
	switch {
	case st.llr >= s.logA:
		return math.Min(1, 0.5+(st.llr-s.logA)/span)
	case st.llr <= s.logB:
		return math.Min(1, 0.5+(s.logB-st.llr)/span)
	default:
		progress := (st.llr - s.logB) / span
		return 0.5 + 0.4*math.Abs(progress-0.5)/0.5
	}
}

// Observations returns a copy of the bounded window for a test, for
// estimating sufficient statistics of data-driven hypotheses.
func (s *CompositeSPRT) Observations(testID string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tests[testID]
	if !ok {
		return nil
	}
	return append([]float64(nil), st.observations...)
}

// ReleaseTest releases a non-terminal test's alpha back to the ledger and
// forgets its state. Used when a (symbol, side, route) stream goes away
// before the test concludes.
func (s *CompositeSPRT) ReleaseTest(testID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released, err := s.ledger.Release(testID)
	if err == nil {
		delete(s.tests, testID)
	}
	return released, err
}
