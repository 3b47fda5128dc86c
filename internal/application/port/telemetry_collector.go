package port

import (
	"context"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// TelemetryCollector определяет интерфейс для сбора показаний с хоста (Port)
// Реализация будет в Infrastructure слое. Используется демонстрационным
// генератором телеметрии и trend-seeder'ом.
type TelemetryCollector interface {
	// Collect снимает текущее показание монитора
	Collect(ctx context.Context, monitorID string) (*entity.Reading, error)
}
