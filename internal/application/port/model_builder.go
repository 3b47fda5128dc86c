package port

import (
	"context"
	"errors"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// ErrInsufficientHistory означает, что истории монитора не хватает
// для построения модели. Временный сбой: кэш запомнит его и повторит
// попытку после backoff-интервала.
var ErrInsufficientHistory = errors.New("not enough history to build model")

// ModelBuilder определяет интерфейс построения модели по истории монитора (Port)
// Реализация будет в Infrastructure слое (training поверх TrendSource)
type ModelBuilder interface {
	// Build обучает и возвращает новый артефакт монитора.
	// Возвращает ErrInsufficientHistory, когда данных недостаточно.
	Build(ctx context.Context, monitorID string) (*entity.ModelArtifact, error)
}
