package service

import (
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/valueobject"
)

// DetectorPolicy задает правило принятия решения
type DetectorPolicy struct {
	DefaultThreshold   float64
	ThresholdOverrides map[string]float64
	BreachCount        int // K последовательных превышений до срабатывания
}

// AnomalyDetector применяет порог и гистерезис к счету (Domain Service).
// Счетчик последовательных превышений ведется на монитор и сбрасывается,
// как только счет опускается ниже порога. Не потокобезопасен: экземпляр
// принадлежит одной воркер-горутине, как и окна ее мониторов.
type AnomalyDetector struct {
	policy  DetectorPolicy
	streaks map[string]int
}

// NewAnomalyDetector создает детектор
func NewAnomalyDetector(policy DetectorPolicy) *AnomalyDetector {
	if policy.BreachCount < 1 {
		policy.BreachCount = 1
	}
	return &AnomalyDetector{
		policy:  policy,
		streaks: make(map[string]int),
	}
}

// Threshold возвращает порог монитора (override или значение по умолчанию)
func (d *AnomalyDetector) Threshold(monitorID string) float64 {
	if threshold, ok := d.policy.ThresholdOverrides[monitorID]; ok {
		return threshold
	}
	return d.policy.DefaultThreshold
}

// Decide принимает решение по счету одного окна
func (d *AnomalyDetector) Decide(
	summary valueobject.WindowSummary,
	score float64,
	degraded bool,
	modelVersion string,
	topSensors []string,
) *entity.AnomalyVerdict {
	monitorID := summary.MonitorID()
	threshold := d.Threshold(monitorID)

	if score >= threshold {
		d.streaks[monitorID]++
	} else {
		d.streaks[monitorID] = 0
	}

	anomalous := d.streaks[monitorID] >= d.policy.BreachCount

	return entity.NewAnomalyVerdict(
		monitorID,
		summary.At(),
		score,
		anomalous,
		degraded,
		modelVersion,
		topSensors,
		summary.Vector().ToMap(),
		summary.SampleCount(),
	)
}

// Forget удаляет состояние гистерезиса монитора (при вытеснении ключа)
func (d *AnomalyDetector) Forget(monitorID string) {
	delete(d.streaks, monitorID)
}

// Streak возвращает текущую серию превышений монитора
func (d *AnomalyDetector) Streak(monitorID string) int {
	return d.streaks[monitorID]
}
