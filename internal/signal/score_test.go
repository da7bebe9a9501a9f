package signal

import (
	"math"
	"testing"
)

type halfCalibrator struct{}

func (halfCalibrator) Calibrate(p float64) float64 { return p / 2 }

func TestScoreLinearTerm(t *testing.T) {
	t.Parallel()
	m := NewScoreModel(map[string]float64{"obi_l1": 0.8, "tfi": 0.5}, -0.1, 0, false, nil)

	out := m.Score(map[string]float64{"obi_l1": 0.5, "tfi": -0.2}, CrossInput{})
	wantLin := 0.8*0.5 + 0.5*(-0.2)
	if math.Abs(out.Components["lin"]-wantLin) > 1e-12 {
		t.Errorf("lin = %v, want %v", out.Components["lin"], wantLin)
	}
	if math.Abs(out.Score-(wantLin-0.1)) > 1e-12 {
		t.Errorf("score = %v, want %v", out.Score, wantLin-0.1)
	}
	if out.P != out.PRaw {
		t.Error("without calibrator, p must equal p_raw")
	}
}

func TestScoreMissingFeaturesAreZero(t *testing.T) {
	t.Parallel()
	m := NewScoreModel(map[string]float64{"missing": 3.0}, 0, 0, false, nil)
	out := m.Score(map[string]float64{}, CrossInput{})
	if out.Score != 0 {
		t.Errorf("score = %v, want 0 for missing feature", out.Score)
	}
	if out.PRaw != 0.5 {
		t.Errorf("p_raw = %v, want 0.5", out.PRaw)
	}
}

func TestScoreClampStability(t *testing.T) {
	t.Parallel()
	m := NewScoreModel(map[string]float64{"x": 1}, 0, 0, false, nil)

	out := m.Score(map[string]float64{"x": 1e6}, CrossInput{})
	if math.IsNaN(out.PRaw) || out.PRaw > 1 {
		t.Errorf("p_raw = %v for huge score", out.PRaw)
	}
	out = m.Score(map[string]float64{"x": -1e6}, CrossInput{})
	if math.IsNaN(out.PRaw) || out.PRaw < 0 {
		t.Errorf("p_raw = %v for huge negative score", out.PRaw)
	}
}

func TestScoreCrossAssetGating(t *testing.T) {
	t.Parallel()
	cross := CrossInput{Beta: 0.25, Return: -0.004, Valid: true}

	tests := []struct {
		name     string
		gamma    float64
		use      bool
		in       CrossInput
		wantZero bool
	}{
		{"enabled", 2.0, true, cross, false},
		{"gamma zero", 0, true, cross, true},
		{"disabled", 2.0, false, cross, true},
		{"invalid input", 2.0, true, CrossInput{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewScoreModel(nil, 0, tt.gamma, tt.use, nil)
			out := m.Score(nil, tt.in)
			if (out.Components["cross"] == 0) != tt.wantZero {
				t.Errorf("cross = %v, wantZero=%v", out.Components["cross"], tt.wantZero)
			}
		})
	}
}

func TestScoreCalibrator(t *testing.T) {
	t.Parallel()
	m := NewScoreModel(nil, 0, 0, false, halfCalibrator{})
	out := m.Score(nil, CrossInput{})
	if out.PRaw != 0.5 || out.P != 0.25 {
		t.Errorf("p_raw=%v p=%v, want 0.5 and 0.25", out.PRaw, out.P)
	}
}
