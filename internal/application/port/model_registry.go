package port

import (
	"context"
	"time"
)

// ModelRecord представляет запись реестра об обученной версии модели.
type ModelRecord struct {
	MonitorID    string
	Version      string
	TrainedAt    time.Time
	FeatureNames []string
	SampleCount  int
	StorageKey   string
}

// ModelListQuery определяет параметры выборки записей реестра.
type ModelListQuery struct {
	MonitorID string
	Limit     int
	Cursor    string
}

// ModelListPage содержит результат выборки и курсор следующей страницы.
type ModelListPage struct {
	Items      []ModelRecord
	NextCursor string
}

// ModelRegistry определяет интерфейс реестра версий моделей.
// Хранит метаданные обучений для аудита, сами артефакты лежат в ArtifactStore.
type ModelRegistry interface {
	PutRecord(ctx context.Context, record ModelRecord) error
	ListByMonitor(ctx context.Context, query ModelListQuery) (ModelListPage, error)
}
