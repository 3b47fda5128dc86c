package service

import (
	"errors"
	"fmt"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/valueobject"
)

// ErrSchemaMismatch означает, что набор сенсоров сводки не совпадает с
// признаками, на которых обучен артефакт. Это нарушение контракта
// конфигурации, а не временный сбой: переобучение модели не поможет
// и не запускается.
var ErrSchemaMismatch = errors.New("window summary schema does not match model artifact")

// Scaler применяет robust scaling, входящий в состав артефакта (Domain Service)
type Scaler struct{}

// NewScaler создает новый Scaler
func NewScaler() *Scaler {
	return &Scaler{}
}

// Transform масштабирует сводку окна параметрами артефакта.
// Чистая функция: (x - center) / scale для каждого признака.
func (s *Scaler) Transform(artifact *entity.ModelArtifact, summary valueobject.WindowSummary) (valueobject.FeatureVector, error) {
	expected := artifact.FeatureNames()
	vector := summary.Vector()

	if !vector.SameSchema(expected) {
		return valueobject.FeatureVector{}, fmt.Errorf(
			"%w: artifact %s expects %v, summary has %v",
			ErrSchemaMismatch, artifact.Version(), expected, vector.Names(),
		)
	}

	centers, scales := artifact.ScalerParams()
	values := vector.Values()

	scaled := make([]float64, len(values))
	for i, value := range values {
		scaled[i] = (value - centers[i]) / scales[i]
	}

	return valueobject.NewOrderedFeatureVector(expected, scaled)
}
