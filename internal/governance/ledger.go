package governance

import (
	"fmt"
	"sync"
	"time"
)

// AlphaPolicy selects the per-test allowance schedule.
type AlphaPolicy string

const (
	PolicyPocock AlphaPolicy = "pocock"
	PolicyOBF    AlphaPolicy = "obf"
	PolicyBHFDR  AlphaPolicy = "bh-fdr"
)

// LedgerEntry is one recorded alpha spend.
type LedgerEntry struct {
	TS              time.Time
	TestID          string
	PolicyID        string
	AlphaSpent      float64
	CumulativeAlpha float64
	Decision        Decision
	LLR             float64
	NObservations   int
	TestType        string
}

// AlphaLedger accounts the family-wise type-I-error budget across many
// sequential tests. Spending is monotone: once alpha is recorded it can
// only be reclaimed by Release, and only for a test that has not been
// closed by a terminal decision.
type AlphaLedger struct {
	mu sync.Mutex

	totalAlpha float64
	policy     AlphaPolicy

	entries       []LedgerEntry
	cumulative    float64
	expectedTests int

	spentByTest map[string]float64
	closed      map[string]bool
}

// NewAlphaLedger creates a ledger with the given family-wise budget and
// policy. Unknown policies fall back to pocock.
func NewAlphaLedger(totalAlpha float64, policy AlphaPolicy) *AlphaLedger {
	switch policy {
	case PolicyPocock, PolicyOBF, PolicyBHFDR:
	default:
		policy = PolicyPocock
	}
	return &AlphaLedger{
		totalAlpha:  totalAlpha,
		policy:      policy,
		spentByTest: make(map[string]float64),
		closed:      make(map[string]bool),
	}
}

// SetExpectedTests sets the planning horizon used by the allowance schedule.
func (l *AlphaLedger) SetExpectedTests(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 1 {
		n = 1
	}
	l.expectedTests = n
}

// allowance is the per-test alpha permitted by the policy for the idx-th
// decision (0-based).
func (l *AlphaLedger) allowance(idx int) float64 {
	n := l.expectedTests
	if n < 1 {
		n = 1
	}
	t := float64(idx + 1)
	switch l.policy {
	case PolicyOBF:
		// O'Brien–Fleming, 2·α/t approximation of the closed form.
		a := l.totalAlpha * 2 / t
		if a > l.totalAlpha {
			a = l.totalAlpha
		}
		return a
	case PolicyBHFDR:
		// Benjamini–Hochberg step-up: allowance grows with rank.
		return l.totalAlpha * t / float64(n)
	default:
		return l.totalAlpha / float64(n)
	}
}

// Spend clamps the requested alpha to the policy allowance, records the
// entry, and updates entry.AlphaSpent/CumulativeAlpha with the actual
// amounts. Returns false without recording when the cumulative total would
// exceed the family-wise budget.
func (l *AlphaLedger) Spend(entry *LedgerEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := len(l.entries)
	actual := entry.AlphaSpent
	if allowed := l.allowance(idx); actual > allowed {
		actual = allowed
	}
	if l.cumulative+actual > l.totalAlpha {
		return false
	}

	entry.AlphaSpent = actual
	l.cumulative += actual
	entry.CumulativeAlpha = l.cumulative
	l.entries = append(l.entries, *entry)
	l.spentByTest[entry.TestID] += actual
	return true
}

// Release returns all alpha recorded under an active (not yet closed)
// test back to the budget. Closed or unknown tests cannot release.
func (l *AlphaLedger) Release(testID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed[testID] {
		return 0, fmt.Errorf("release %q: test already closed", testID)
	}
	spent, ok := l.spentByTest[testID]
	if !ok || spent <= 0 {
		return 0, fmt.Errorf("release %q: no alpha recorded", testID)
	}
	l.cumulative -= spent
	if l.cumulative < 0 {
		l.cumulative = 0
	}
	delete(l.spentByTest, testID)
	return spent, nil
}

// CloseTest marks a test terminal; its alpha can no longer be released.
func (l *AlphaLedger) CloseTest(testID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed[testID] = true
}

// CumulativeAlpha returns the total alpha spent so far.
func (l *AlphaLedger) CumulativeAlpha() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cumulative
}

// RemainingAlpha returns the budget still available.
func (l *AlphaLedger) RemainingAlpha() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	rem := l.totalAlpha - l.cumulative
	if rem < 0 {
		return 0
	}
	return rem
}

// Entries returns a copy of the recorded ledger.
func (l *AlphaLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// PolicyInfo summarizes the ledger state for diagnostics.
func (l *AlphaLedger) PolicyInfo() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	rem := l.totalAlpha - l.cumulative
	if rem < 0 {
		rem = 0
	}
	return map[string]any{
		"policy":           string(l.policy),
		"total_alpha":      l.totalAlpha,
		"cumulative_alpha": l.cumulative,
		"remaining_alpha":  rem,
		"expected_tests":   l.expectedTests,
		"n_entries":        len(l.entries),
	}
}
