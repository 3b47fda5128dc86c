package entity

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyVerdict — результат решения по одному окну монитора.
// Иммутабельный объект: создается детектором и дальше только читается.
type AnomalyVerdict struct {
	id           string
	monitorID    string
	timestamp    time.Time
	score        float64
	anomalous    bool
	degraded     bool
	modelVersion string
	topSensors   []string
	features     map[string]float64
	sampleCount  int
}

// NewAnomalyVerdict создает вердикт
func NewAnomalyVerdict(
	monitorID string,
	timestamp time.Time,
	score float64,
	anomalous bool,
	degraded bool,
	modelVersion string,
	topSensors []string,
	features map[string]float64,
	sampleCount int,
) *AnomalyVerdict {
	copiedFeatures := make(map[string]float64, len(features))
	for name, value := range features {
		copiedFeatures[name] = value
	}

	return &AnomalyVerdict{
		id:           uuid.New().String(),
		monitorID:    monitorID,
		timestamp:    timestamp,
		score:        score,
		anomalous:    anomalous,
		degraded:     degraded,
		modelVersion: modelVersion,
		topSensors:   append([]string(nil), topSensors...),
		features:     copiedFeatures,
		sampleCount:  sampleCount,
	}
}

// ID возвращает идентификатор вердикта
func (v *AnomalyVerdict) ID() string {
	return v.id
}

// MonitorID возвращает монитор, по которому принято решение
func (v *AnomalyVerdict) MonitorID() string {
	return v.monitorID
}

// Timestamp возвращает время окна, породившего вердикт
func (v *AnomalyVerdict) Timestamp() time.Time {
	return v.timestamp
}

// Score возвращает непрерывный счет аномальности
func (v *AnomalyVerdict) Score() float64 {
	return v.score
}

// IsAnomalous сообщает, признано ли окно аномальным
func (v *AnomalyVerdict) IsAnomalous() bool {
	return v.anomalous
}

// IsDegraded сообщает, что решение принято на устаревшей модели
func (v *AnomalyVerdict) IsDegraded() bool {
	return v.degraded
}

// ModelVersion возвращает версию использованного артефакта
func (v *AnomalyVerdict) ModelVersion() string {
	return v.modelVersion
}

// TopSensors возвращает сенсоры с наибольшим вкладом в счет
func (v *AnomalyVerdict) TopSensors() []string {
	return append([]string(nil), v.topSensors...)
}

// Features возвращает сводку признаков, по которой принято решение
func (v *AnomalyVerdict) Features() map[string]float64 {
	result := make(map[string]float64, len(v.features))
	for name, value := range v.features {
		result[name] = value
	}
	return result
}

// SampleCount возвращает число событий в окне на момент решения
func (v *AnomalyVerdict) SampleCount() int {
	return v.sampleCount
}
