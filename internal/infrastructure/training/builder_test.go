package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

type mockTrendSource struct {
	readings []*entity.Reading
	err      error
}

func (m *mockTrendSource) History(_ context.Context, _ string, _, _ time.Time) ([]*entity.Reading, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.readings, nil
}

func (m *mockTrendSource) SaveBatch(_ context.Context, _ []*entity.Reading) error {
	return nil
}

func historyOf(t *testing.T, monitorID string, values []float64) []*entity.Reading {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	readings := make([]*entity.Reading, len(values))
	for i, value := range values {
		reading, err := entity.NewReading(monitorID, base.Add(time.Duration(i)*time.Hour), map[string]float64{
			"moisture": value,
		})
		if err != nil {
			t.Fatalf("NewReading() error = %v", err)
		}
		readings[i] = reading
	}
	return readings
}

func TestBuilder_MedianAndIQR(t *testing.T) {
	// медиана 5, Q1 = 3, Q3 = 7
	source := &mockTrendSource{
		readings: historyOf(t, "pump-1", []float64{1, 3, 5, 7, 9}),
	}
	builder := NewBuilder(source, Config{MinSamples: 3, Sensitivity: 2.0}, logger.New("error"))

	artifact, err := builder.Build(context.Background(), "pump-1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if artifact.MonitorID() != "pump-1" || !artifact.IsValid() {
		t.Fatalf("unexpected artifact identity: %+v", artifact)
	}
	names := artifact.FeatureNames()
	if len(names) != 1 || names[0] != "moisture" {
		t.Fatalf("unexpected features: %v", names)
	}

	centers, scales := artifact.ScalerParams()
	if math.Abs(centers[0]-5) > 1e-9 {
		t.Fatalf("center = %v, want 5", centers[0])
	}
	if math.Abs(scales[0]-4) > 1e-9 {
		t.Fatalf("scale = %v, want 4 (IQR)", scales[0])
	}
	if artifact.Sensitivity() != 2.0 {
		t.Fatalf("sensitivity = %v, want 2.0", artifact.Sensitivity())
	}
}

func TestBuilder_ConstantFeatureGetsFloorScale(t *testing.T) {
	source := &mockTrendSource{
		readings: historyOf(t, "pump-1", []float64{0.03, 0.03, 0.03, 0.03}),
	}
	builder := NewBuilder(source, Config{MinSamples: 3, Sensitivity: 2.0}, logger.New("error"))

	artifact, err := builder.Build(context.Background(), "pump-1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	_, scales := artifact.ScalerParams()
	if scales[0] <= 0 {
		t.Fatalf("scale must stay positive for constant series, got %v", scales[0])
	}
}

func TestBuilder_InsufficientHistory(t *testing.T) {
	source := &mockTrendSource{
		readings: historyOf(t, "pump-1", []float64{1, 2}),
	}
	builder := NewBuilder(source, Config{MinSamples: 10, Sensitivity: 2.0}, logger.New("error"))

	_, err := builder.Build(context.Background(), "pump-1")
	if !errors.Is(err, port.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestBuilder_ConfiguredSensorCodesOverrideHistory(t *testing.T) {
	source := &mockTrendSource{
		readings: historyOf(t, "pump-1", []float64{1, 2, 3, 4, 5}),
	}
	builder := NewBuilder(source, Config{
		MinSamples:  3,
		Sensitivity: 2.0,
		SensorCodes: []string{"oil_temperature", "moisture"},
	}, logger.New("error"))

	artifact, err := builder.Build(context.Background(), "pump-1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	names := artifact.FeatureNames()
	if len(names) != 2 || names[0] != "moisture" || names[1] != "oil_temperature" {
		t.Fatalf("expected sorted configured features, got %v", names)
	}
}

func TestBuilder_SourceFailurePropagates(t *testing.T) {
	source := &mockTrendSource{err: errors.New("db is down")}
	builder := NewBuilder(source, Config{MinSamples: 3, Sensitivity: 2.0}, logger.New("error"))

	if _, err := builder.Build(context.Background(), "pump-1"); err == nil {
		t.Fatalf("expected error from trend source")
	}
}

func TestQuantileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := quantile(sorted, 0.25); math.Abs(got-1.75) > 1e-9 {
		t.Fatalf("quantile(0.25) = %v, want 1.75", got)
	}
	if got := quantile(sorted, 0.75); math.Abs(got-3.25) > 1e-9 {
		t.Fatalf("quantile(0.75) = %v, want 3.25", got)
	}
	if got := quantile(sorted, 1); got != 4 {
		t.Fatalf("quantile(1) = %v, want 4", got)
	}
}
