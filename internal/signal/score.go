package signal

import "math"

// Calibrator maps a raw probability in [0,1] to a calibrated probability in
// [0,1]. Implementations must be monotone (Platt, isotonic, ...).
type Calibrator interface {
	Calibrate(p float64) float64
}

// ScoreOutput carries the score, probabilities, and the component
// breakdown used for decision explainability.
type ScoreOutput struct {
	Score      float64
	PRaw       float64
	P          float64
	Components map[string]float64 // lin, intercept, cross, gamma
}

// CrossInput is the optional cross-asset term input: the lead–lag beta and
// the lagged reference return at the best lag.
type CrossInput struct {
	Beta   float64
	Return float64
	Valid  bool
}

// ScoreModel is a fixed linear model over a named feature vector with an
// optional cross-asset coupling term γ·β·r_ref. Missing features count as 0.
type ScoreModel struct {
	weights       map[string]float64
	intercept     float64
	gamma         float64
	useCrossAsset bool
	calibrator    Calibrator
}

// NewScoreModel creates a score model. calibrator may be nil (p = p_raw).
func NewScoreModel(weights map[string]float64, intercept, gamma float64, useCrossAsset bool, calibrator Calibrator) *ScoreModel {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &ScoreModel{
		weights:       w,
		intercept:     intercept,
		gamma:         gamma,
		useCrossAsset: useCrossAsset,
		calibrator:    calibrator,
	}
}

// sigmoid is the numerically stable logistic function.
func sigmoid(z float64) float64 {
	if z >= 0 {
		ez := math.Exp(-z)
		return 1 / (1 + ez)
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Score computes the linear score and probability for a feature map. The
// cross term is included only when γ ≠ 0, cross-asset use is enabled, and
// the input is valid. The raw score is clamped to [−40, 40] before the
// sigmoid.
func (m *ScoreModel) Score(features map[string]float64, cross CrossInput) ScoreOutput {
	lin := 0.0
	for name, w := range m.weights {
		if x, ok := features[name]; ok && !math.IsNaN(x) {
			lin += w * x
		}
	}

	crossTerm := 0.0
	if m.useCrossAsset && m.gamma != 0 && cross.Valid {
		crossTerm = m.gamma * cross.Beta * cross.Return
	}

	s := lin + m.intercept + crossTerm
	pRaw := sigmoid(clip(s, -40, 40))

	p := pRaw
	if m.calibrator != nil {
		p = clip(m.calibrator.Calibrate(pRaw), 0, 1)
	}

	return ScoreOutput{
		Score: s,
		PRaw:  pRaw,
		P:     p,
		Components: map[string]float64{
			"lin":       lin,
			"intercept": m.intercept,
			"cross":     crossTerm,
			"gamma":     m.gamma,
		},
	}
}
