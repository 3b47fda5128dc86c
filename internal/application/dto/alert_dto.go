package dto

import (
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// AlertDTO представляет алерт для публикации в выходной стрим и клиентам
type AlertDTO struct {
	ID           string             `json:"id"`
	MonitorID    string             `json:"monitor_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Score        float64            `json:"score"`
	Threshold    float64            `json:"threshold"`
	Anomalous    bool               `json:"anomalous"`
	Degraded     bool               `json:"degraded"`
	ModelVersion string             `json:"model_version"`
	TopSensors   []string           `json:"top_sensors,omitempty"`
	Features     map[string]float64 `json:"features,omitempty"`
	SampleCount  int                `json:"sample_count"`
	EmittedAt    time.Time          `json:"emitted_at"`
}

// FromVerdict конвертирует Domain Entity в DTO
func FromVerdict(verdict *entity.AnomalyVerdict, threshold float64) *AlertDTO {
	return &AlertDTO{
		ID:           verdict.ID(),
		MonitorID:    verdict.MonitorID(),
		Timestamp:    verdict.Timestamp(),
		Score:        verdict.Score(),
		Threshold:    threshold,
		Anomalous:    verdict.IsAnomalous(),
		Degraded:     verdict.IsDegraded(),
		ModelVersion: verdict.ModelVersion(),
		TopSensors:   verdict.TopSensors(),
		Features:     verdict.Features(),
		SampleCount:  verdict.SampleCount(),
		EmittedAt:    time.Now(),
	}
}
