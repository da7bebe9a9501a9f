package idem

import (
	"encoding/json"
	"fmt"
	"time"

	"aurora-core/internal/observability"
	"aurora-core/pkg/types"
)

// Record is the logical value stored under a client order id.
type Record struct {
	SpecHash  string            `json:"spec_hash"`
	Status    types.OrderStatus `json:"status"`
	UpdatedNs int64             `json:"updated_ns"`
	Result    json.RawMessage   `json:"result,omitempty"`

	// Degraded marks a record whose stored payload could not be decoded:
	// the raw value is carried in Raw and Result is absent.
	Degraded bool   `json:"-"`
	Raw      string `json:"-"`
}

// OrderResult decodes the cached result payload, if any.
func (r *Record) OrderResult() (*types.OrderResult, bool) {
	if len(r.Result) == 0 {
		return nil, false
	}
	var res types.OrderResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, false
	}
	return &res, true
}

// ConflictError reports reuse of a client order id with a different spec
// hash. The caller must not submit; it maps to HTTP 409 semantics upstream.
type ConflictError struct {
	COID     string
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency conflict: coid %q already bound to a different spec", e.COID)
}

// CheckOutcome distinguishes the non-error results of a pre-submit check.
type CheckOutcome int

const (
	// Fresh means no record existed; a PENDING record was written and the
	// caller proceeds to submit.
	Fresh CheckOutcome = iota
	// Hit means a record with the same spec hash exists; the caller must
	// skip the network call and use the cached payload.
	Hit
)

// CheckResult is the outcome of PreSubmitCheck.
type CheckResult struct {
	Outcome CheckOutcome
	Record  *Record // set on Hit
}

// Guard serializes order submissions through the idempotency store. It has
// no state of its own beyond the store handle; atomicity is inherited from
// the store's locking.
type Guard struct {
	store Store
	sink  observability.Sink
	nowNs func() int64
}

// NewGuard creates a guard over the given store. sink may be nil.
func NewGuard(store Store, sink observability.Sink) *Guard {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Guard{
		store: store,
		sink:  sink,
		nowNs: func() int64 { return time.Now().UnixNano() },
	}
}

func decodeRecord(raw string) *Record {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Status == "" {
		// Corrupt or foreign payload: surface as a degraded record rather
		// than dropping it (the row still blocks duplicate submission).
		return &Record{Degraded: true, Raw: raw}
	}
	return &rec
}

// PreSubmitCheck implements the at-most-once entry point:
//
//   - no record under coid: write {specHash, PENDING} with ttl, return Fresh;
//   - record with the same spec hash: return Hit with the cached payload;
//   - record with a different spec hash: return *ConflictError.
//
// A record that fails to decode is a degraded Hit: the caller gets the raw
// status without a parsed result and must not resubmit.
func (g *Guard) PreSubmitCheck(coid, specHash string, ttl time.Duration) (CheckResult, error) {
	raw, ok, err := g.store.Get(coid)
	if err != nil {
		return CheckResult{}, fmt.Errorf("pre-submit lookup %q: %w", coid, err)
	}

	if ok {
		rec := decodeRecord(raw)
		// A record written by a lifecycle event before any pre-submit has
		// no spec hash; it hits rather than conflicts.
		if !rec.Degraded && rec.SpecHash != "" && rec.SpecHash != specHash {
			g.emit(observability.IdemConflict, map[string]any{"cid": coid})
			return CheckResult{}, &ConflictError{COID: coid, Existing: rec.SpecHash, Incoming: specHash}
		}
		g.emit(observability.IdemHit, map[string]any{"cid": coid})
		g.emit(observability.IdemDup, map[string]any{"cid": coid})
		return CheckResult{Outcome: Hit, Record: rec}, nil
	}

	rec := Record{SpecHash: specHash, Status: types.StatusPending, UpdatedNs: g.nowNs()}
	data, err := json.Marshal(rec)
	if err != nil {
		return CheckResult{}, fmt.Errorf("encode record %q: %w", coid, err)
	}
	if err := g.store.Put(coid, string(data), &ttl); err != nil {
		return CheckResult{}, fmt.Errorf("store pending %q: %w", coid, err)
	}
	g.emit(observability.IdemStore, map[string]any{"cid": coid})
	return CheckResult{Outcome: Fresh}, nil
}

// MarkStatus writes a new status under coid, preserving the prior spec
// hash, optionally caching the order result for duplicate HITs.
//
// Monotonicity policy: a write that would move backward from a terminal
// status is a no-op returning the prior record unchanged.
func (g *Guard) MarkStatus(coid string, status types.OrderStatus, ttl time.Duration, result *types.OrderResult) (*Record, error) {
	var prev *Record
	if raw, ok, err := g.store.Get(coid); err != nil {
		return nil, fmt.Errorf("mark-status lookup %q: %w", coid, err)
	} else if ok {
		prev = decodeRecord(raw)
	}

	if prev != nil && !prev.Degraded && !prev.Status.CanTransition(status) {
		// Terminal state wins; duplicate/late writes are swallowed.
		return prev, nil
	}

	rec := Record{Status: status, UpdatedNs: g.nowNs()}
	if prev != nil && !prev.Degraded {
		rec.SpecHash = prev.SpecHash
		rec.Result = prev.Result
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result %q: %w", coid, err)
		}
		rec.Result = data
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %q: %w", coid, err)
	}
	if err := g.store.Put(coid, string(data), &ttl); err != nil {
		return nil, fmt.Errorf("store status %q: %w", coid, err)
	}
	g.emit(observability.IdemUpdate, map[string]any{"cid": coid, "status": string(status)})
	return &rec, nil
}

// CachedResult returns the decoded order result cached under coid, if any.
func (g *Guard) CachedResult(coid string) (*types.OrderResult, bool) {
	raw, ok, err := g.store.Get(coid)
	if err != nil || !ok {
		return nil, false
	}
	rec := decodeRecord(raw)
	if rec.Degraded {
		return nil, false
	}
	return rec.OrderResult()
}

// EventTTL is the marker lifetime for exchange callback de-duplication.
// Long: replays of historical streams must still be recognized.
const EventTTL = 7 * 24 * time.Hour

// SeenEvent tests-and-marks an exchange-delivered event id. Returns true
// when the event was already processed; callers must then skip re-applying
// it to state. Callers deliver a given order's events from a single
// goroutine, so the check-then-mark pair needs no cross-call lock.
func (g *Guard) SeenEvent(eventID string) (bool, error) {
	key := "evt:" + eventID
	seen, err := g.store.Seen(key)
	if err != nil {
		return false, fmt.Errorf("event lookup %q: %w", eventID, err)
	}
	if seen {
		g.emit(observability.IdemDup, map[string]any{"event_id": eventID})
		return true, nil
	}
	if err := g.store.Mark(key, EventTTL); err != nil {
		return false, fmt.Errorf("event mark %q: %w", eventID, err)
	}
	return false, nil
}

// emit delivers an observability event; failures never affect the caller.
func (g *Guard) emit(code string, fields map[string]any) {
	defer func() { _ = recover() }()
	g.sink.Emit(code, fields)
}
