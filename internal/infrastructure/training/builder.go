package training

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// минимальный размах: константные признаки не должны давать деление на ноль
const minScale = 1e-9

// Config задает параметры обучения
type Config struct {
	TrendSpan   time.Duration // глубина истории для обучения
	MinSamples  int           // минимум показаний для построения модели
	Sensitivity float64       // делитель нормировки счета
	SensorCodes []string      // признаки модели; пусто — объединение сенсоров истории
}

// Builder реализует port.ModelBuilder: обучает robust scaler по истории
// монитора. Центр признака — медиана, размах — межквартильный интервал:
// обе статистики устойчивы к выбросам, которые в обучающей истории
// заведомо есть.
type Builder struct {
	trends port.TrendSource
	config Config
	logger *logger.Logger
}

// NewBuilder создает Builder поверх источника истории
func NewBuilder(trends port.TrendSource, config Config, log *logger.Logger) *Builder {
	if config.TrendSpan <= 0 {
		config.TrendSpan = 30 * 24 * time.Hour
	}
	if config.MinSamples < 2 {
		config.MinSamples = 2
	}
	if config.Sensitivity <= 0 {
		config.Sensitivity = 2.0
	}
	return &Builder{
		trends: trends,
		config: config,
		logger: log,
	}
}

// Build обучает артефакт монитора по его истории
func (b *Builder) Build(ctx context.Context, monitorID string) (*entity.ModelArtifact, error) {
	to := time.Now().UTC()
	from := to.Add(-b.config.TrendSpan)

	history, err := b.trends.History(ctx, monitorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch trend history: %w", err)
	}
	if len(history) < b.config.MinSamples {
		return nil, fmt.Errorf("%w: monitor %s has %d of %d required samples",
			port.ErrInsufficientHistory, monitorID, len(history), b.config.MinSamples)
	}

	featureNames := b.featureNames(history)
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("%w: monitor %s history has no usable sensors",
			port.ErrInsufficientHistory, monitorID)
	}

	centers := make([]float64, len(featureNames))
	scales := make([]float64, len(featureNames))
	for i, name := range featureNames {
		series := make([]float64, 0, len(history))
		for _, reading := range history {
			if value, ok := reading.Sensor(name); ok {
				series = append(series, value)
			} else {
				// отсутствующее значение — ноль, как при скоринге
				series = append(series, 0)
			}
		}
		centers[i] = median(series)
		scales[i] = iqr(series)
		if scales[i] < minScale {
			scales[i] = minScale
		}
	}

	version := uuid.New().String()[:8]
	artifact, err := entity.NewModelArtifact(
		monitorID,
		version,
		time.Now().UTC(),
		true,
		featureNames,
		centers,
		scales,
		b.config.Sensitivity,
	)
	if err != nil {
		return nil, fmt.Errorf("assemble artifact: %w", err)
	}

	b.logger.Info("trained model",
		"monitor_id", monitorID,
		"version", version,
		"samples", len(history),
		"features", len(featureNames))
	return artifact, nil
}

// featureNames возвращает настроенный набор признаков либо объединение
// сенсоров всей истории, отсортированное по имени
func (b *Builder) featureNames(history []*entity.Reading) []string {
	if len(b.config.SensorCodes) > 0 {
		names := append([]string(nil), b.config.SensorCodes...)
		sort.Strings(names)
		return names
	}

	seen := make(map[string]struct{})
	for _, reading := range history {
		for code := range reading.Sensors() {
			seen[code] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for code := range seen {
		names = append(names, code)
	}
	sort.Strings(names)
	return names
}

// median возвращает медиану ряда; среднее двух центральных при четной длине
func median(series []float64) float64 {
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// iqr возвращает межквартильный размах (Q3 - Q1) с линейной интерполяцией
func iqr(series []float64) float64 {
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.75) - quantile(sorted, 0.25)
}

// quantile возвращает квантиль отсортированного ряда
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	position := q * float64(len(sorted)-1)
	lower := int(position)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	fraction := position - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[lower+1]*fraction
}
