// Package observability defines the stable event-code vocabulary and the
// sink through which core components report decisions, denials, and
// idempotency outcomes. Codes are string constants with stable identity;
// downstream log processors match on them verbatim.
package observability

// Governance / halt codes.
const (
	AuroraHalt   = "AURORA.HALT"
	AuroraResume = "AURORA.RESUME"

	AuroraExpectedReturnLow    = "AURORA.EXPECTED_RETURN_LOW"
	AuroraExpectedReturnAccept = "AURORA.EXPECTED_RETURN_ACCEPT"
)

// Risk gate denial codes.
const (
	RiskDenyDrawdown = "RISK.DENY.DRAWDOWN"
	RiskDenyCVaR     = "RISK.DENY.CVAR"
	RiskDenyPosLimit = "RISK.DENY.POS_LIMIT"

	SpreadGuardTrip     = "SPREAD_GUARD_TRIP"
	LatencyGuardTrip    = "LATENCY_GUARD_TRIP"
	VolatilityGuardTrip = "VOLATILITY_GUARD_TRIP"
)

// Data-quality codes.
const (
	DQStaleBook      = "DQ.STALE_BOOK"
	DQCrossedBook    = "DQ.CROSSED_BOOK"
	DQAbnormalSpread = "DQ.ABNORMAL_SPREAD"
)

// Idempotency codes.
const (
	IdemStore    = "IDEM.STORE"
	IdemHit      = "IDEM.HIT"
	IdemDup      = "IDEM.DUP"
	IdemConflict = "IDEM.CONFLICT"
	IdemUpdate   = "IDEM.UPDATE"
)

// SPRT codes.
const (
	SPRTDecisionH0 = "SPRT.DECISION_H0"
	SPRTDecisionH1 = "SPRT.DECISION_H1"
	SPRTContinue   = "SPRT.CONTINUE"
	SPRTError      = "SPRT.ERROR"
)
