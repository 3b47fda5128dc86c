package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/valueobject"
)

func summaryFor(t *testing.T, monitorID string, values map[string]float64) valueobject.WindowSummary {
	t.Helper()
	vector, err := valueobject.NewFeatureVector(values)
	if err != nil {
		t.Fatalf("NewFeatureVector() error = %v", err)
	}
	summary, err := valueobject.NewWindowSummary(monitorID, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), vector, 5)
	if err != nil {
		t.Fatalf("NewWindowSummary() error = %v", err)
	}
	return summary
}

func TestAnomalyDetector_BreachCountHysteresis(t *testing.T) {
	detector := NewAnomalyDetector(DetectorPolicy{
		DefaultThreshold: 0.8,
		BreachCount:      3,
	})
	summary := summaryFor(t, "pump-1", map[string]float64{"moisture": 0.1})

	scores := []struct {
		score float64
		want  bool
	}{
		{0.85, false}, // 1-е превышение
		{0.90, false}, // 2-е
		{0.95, true},  // 3-е подряд — алерт
		{0.85, true},  // серия продолжается
		{0.50, false}, // возврат в норму сбрасывает серию
		{0.95, false}, // счет заново
	}

	for i, tc := range scores {
		verdict := detector.Decide(summary, tc.score, false, "v1", nil)
		if verdict.IsAnomalous() != tc.want {
			t.Fatalf("step %d: anomalous = %v, want %v (score %v, streak %d)",
				i, verdict.IsAnomalous(), tc.want, tc.score, detector.Streak("pump-1"))
		}
	}
}

func TestAnomalyDetector_PerMonitorOverrides(t *testing.T) {
	detector := NewAnomalyDetector(DetectorPolicy{
		DefaultThreshold:   0.8,
		ThresholdOverrides: map[string]float64{"pump-strict": 0.5},
		BreachCount:        1,
	})

	if got := detector.Threshold("pump-strict"); got != 0.5 {
		t.Fatalf("Threshold(pump-strict) = %v, want 0.5", got)
	}
	if got := detector.Threshold("pump-other"); got != 0.8 {
		t.Fatalf("Threshold(pump-other) = %v, want 0.8", got)
	}

	strict := detector.Decide(summaryFor(t, "pump-strict", map[string]float64{"moisture": 0.1}), 0.6, false, "v1", nil)
	if !strict.IsAnomalous() {
		t.Fatalf("expected anomaly above override threshold")
	}
	relaxed := detector.Decide(summaryFor(t, "pump-other", map[string]float64{"moisture": 0.1}), 0.6, false, "v1", nil)
	if relaxed.IsAnomalous() {
		t.Fatalf("expected no anomaly below default threshold")
	}
}

func TestAnomalyDetector_StreaksAreIndependentPerMonitor(t *testing.T) {
	detector := NewAnomalyDetector(DetectorPolicy{DefaultThreshold: 0.8, BreachCount: 2})

	detector.Decide(summaryFor(t, "pump-a", map[string]float64{"m": 1}), 0.9, false, "v1", nil)
	verdict := detector.Decide(summaryFor(t, "pump-b", map[string]float64{"m": 1}), 0.9, false, "v1", nil)
	if verdict.IsAnomalous() {
		t.Fatalf("breach on another monitor must not count toward pump-b")
	}

	detector.Forget("pump-a")
	if detector.Streak("pump-a") != 0 {
		t.Fatalf("expected streak reset after Forget")
	}
}

func TestScaler_TransformAppliesRobustScaling(t *testing.T) {
	artifact, err := entity.NewModelArtifact(
		"pump-1", "v1", time.Now(), true,
		[]string{"moisture", "oil_temperature"},
		[]float64{0.03, 60},
		[]float64{0.01, 5},
		2.0,
	)
	if err != nil {
		t.Fatalf("NewModelArtifact() error = %v", err)
	}

	summary := summaryFor(t, "pump-1", map[string]float64{"moisture": 0.05, "oil_temperature": 50})
	scaled, err := NewScaler().Transform(artifact, summary)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	moisture, _ := scaled.Value("moisture")
	temperature, _ := scaled.Value("oil_temperature")
	if math.Abs(moisture-2.0) > 1e-9 {
		t.Fatalf("scaled moisture = %v, want 2.0", moisture)
	}
	if math.Abs(temperature+2.0) > 1e-9 {
		t.Fatalf("scaled oil_temperature = %v, want -2.0", temperature)
	}
}

func TestScaler_SchemaMismatch(t *testing.T) {
	artifact, err := entity.NewModelArtifact(
		"pump-1", "v1", time.Now(), true,
		[]string{"moisture"}, []float64{0.03}, []float64{0.01}, 2.0,
	)
	if err != nil {
		t.Fatalf("NewModelArtifact() error = %v", err)
	}

	summary := summaryFor(t, "pump-1", map[string]float64{"moisture": 0.05, "oil_temperature": 50})
	_, err = NewScaler().Transform(artifact, summary)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestPredictor_ScoreIsDeterministicAndBounded(t *testing.T) {
	artifact, err := entity.NewModelArtifact(
		"pump-1", "v1", time.Now(), true,
		[]string{"moisture", "oil_temperature"},
		[]float64{0.03, 60}, []float64{0.01, 5}, 2.0,
	)
	if err != nil {
		t.Fatalf("NewModelArtifact() error = %v", err)
	}
	predictor := NewPredictor()

	centered, _ := valueobject.NewOrderedFeatureVector([]string{"moisture", "oil_temperature"}, []float64{0, 0})
	if score := predictor.Score(artifact, centered); score != 0 {
		t.Fatalf("score at center = %v, want 0", score)
	}

	deviant, _ := valueobject.NewOrderedFeatureVector([]string{"moisture", "oil_temperature"}, []float64{10, -10})
	score := predictor.Score(artifact, deviant)
	if score <= 0 || score >= 1 {
		t.Fatalf("score out of (0,1): %v", score)
	}
	// d=10, sensitivity=2: 10/12
	if math.Abs(score-10.0/12.0) > 1e-9 {
		t.Fatalf("score = %v, want %v", score, 10.0/12.0)
	}
	if predictor.Score(artifact, deviant) != score {
		t.Fatalf("score is not deterministic")
	}

	// больший разлад дает больший счет
	worse, _ := valueobject.NewOrderedFeatureVector([]string{"moisture", "oil_temperature"}, []float64{20, -20})
	if predictor.Score(artifact, worse) <= score {
		t.Fatalf("expected monotonically increasing score")
	}
}

func TestPredictor_ContributingSensors(t *testing.T) {
	predictor := NewPredictor()
	scaled, _ := valueobject.NewOrderedFeatureVector(
		[]string{"dielectric_constant", "moisture", "oil_temperature"},
		[]float64{0.5, -8.0, 3.0},
	)

	top := predictor.ContributingSensors(scaled, 2)
	if len(top) != 2 || top[0] != "moisture" || top[1] != "oil_temperature" {
		t.Fatalf("unexpected contributing sensors: %v", top)
	}

	all := predictor.ContributingSensors(scaled, 10)
	if len(all) != 3 {
		t.Fatalf("expected all sensors when n exceeds dimension, got %v", all)
	}
}
