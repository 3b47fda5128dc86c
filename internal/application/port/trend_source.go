package port

import (
	"context"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// TrendSource определяет интерфейс доступа к истории показаний мониторов (Port)
// Реализация будет в Infrastructure слое (PostgreSQL)
type TrendSource interface {
	// History возвращает показания монитора за период, упорядоченные по времени
	History(ctx context.Context, monitorID string, from, to time.Time) ([]*entity.Reading, error)

	// SaveBatch сохраняет пачку показаний в историю
	SaveBatch(ctx context.Context, readings []*entity.Reading) error
}
