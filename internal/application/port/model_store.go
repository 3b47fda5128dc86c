package port

import (
	"context"
	"errors"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// ErrArtifactNotFound означает, что для монитора нет сохраненного артефакта.
// Для ModelCache это не сбой, а сигнал перейти к построению модели.
var ErrArtifactNotFound = errors.New("model artifact not found")

// ArtifactStore определяет интерфейс хранилища артефактов моделей (Port)
// Реализация будет в Infrastructure слое (S3)
type ArtifactStore interface {
	// Get загружает артефакт монитора.
	// Возвращает ErrArtifactNotFound, если артефакт отсутствует.
	Get(ctx context.Context, monitorID string) (*entity.ModelArtifact, error)

	// Put сохраняет артефакт монитора, перезаписывая предыдущую версию
	Put(ctx context.Context, artifact *entity.ModelArtifact) error

	// Exists проверяет наличие артефакта без его загрузки
	Exists(ctx context.Context, monitorID string) (bool, error)
}
