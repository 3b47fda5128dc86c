package entity

import (
	"errors"
	"fmt"
	"time"
)

// ModelArtifact — загруженная, готовая к использованию модель монитора
// вместе со своим scaler'ом. Scaler обучается вместе с моделью, поэтому
// параметры масштабирования всегда соответствуют потребляющей их модели.
type ModelArtifact struct {
	monitorID    string
	version      string
	trainedAt    time.Time
	valid        bool
	featureNames []string
	centers      []float64 // медианы признаков (robust scaling)
	scales       []float64 // межквартильные размахи признаков
	sensitivity  float64   // делитель нормировки счета в (0, 1)
}

// NewModelArtifact создает артефакт с проверкой согласованности параметров
func NewModelArtifact(
	monitorID string,
	version string,
	trainedAt time.Time,
	valid bool,
	featureNames []string,
	centers []float64,
	scales []float64,
	sensitivity float64,
) (*ModelArtifact, error) {
	if monitorID == "" {
		return nil, errors.New("monitor id is required")
	}
	if version == "" {
		return nil, errors.New("artifact version is required")
	}
	if len(featureNames) == 0 {
		return nil, errors.New("artifact must declare at least one feature")
	}
	if len(centers) != len(featureNames) || len(scales) != len(featureNames) {
		return nil, fmt.Errorf("scaler parameters mismatch: %d features, %d centers, %d scales",
			len(featureNames), len(centers), len(scales))
	}
	for i, scale := range scales {
		if scale <= 0 {
			return nil, fmt.Errorf("scale for feature %q must be positive, got %v", featureNames[i], scale)
		}
	}
	if sensitivity <= 0 {
		return nil, fmt.Errorf("sensitivity must be positive, got %v", sensitivity)
	}

	return &ModelArtifact{
		monitorID:    monitorID,
		version:      version,
		trainedAt:    trainedAt,
		valid:        valid,
		featureNames: append([]string(nil), featureNames...),
		centers:      append([]float64(nil), centers...),
		scales:       append([]float64(nil), scales...),
		sensitivity:  sensitivity,
	}, nil
}

// MonitorID возвращает монитор, для которого обучен артефакт
func (a *ModelArtifact) MonitorID() string {
	return a.monitorID
}

// Version возвращает версию артефакта
func (a *ModelArtifact) Version() string {
	return a.version
}

// TrainedAt возвращает время обучения
func (a *ModelArtifact) TrainedAt() time.Time {
	return a.trainedAt
}

// IsValid сообщает, пригоден ли артефакт к использованию
func (a *ModelArtifact) IsValid() bool {
	return a.valid
}

// FeatureNames возвращает упорядоченный список признаков модели
func (a *ModelArtifact) FeatureNames() []string {
	return append([]string(nil), a.featureNames...)
}

// FeatureCount возвращает размерность модели
func (a *ModelArtifact) FeatureCount() int {
	return len(a.featureNames)
}

// ScalerParams возвращает параметры robust scaling (центры и размахи)
func (a *ModelArtifact) ScalerParams() (centers, scales []float64) {
	return append([]float64(nil), a.centers...), append([]float64(nil), a.scales...)
}

// Sensitivity возвращает делитель нормировки счета
func (a *ModelArtifact) Sensitivity() float64 {
	return a.sensitivity
}

// UsableFor проверяет, что артефакт валиден и принадлежит запрошенному монитору
func (a *ModelArtifact) UsableFor(monitorID string) bool {
	return a.valid && a.monitorID == monitorID
}

// Age возвращает возраст артефакта с момента обучения
func (a *ModelArtifact) Age() time.Duration {
	return time.Since(a.trainedAt)
}
