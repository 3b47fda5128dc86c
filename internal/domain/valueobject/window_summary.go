package valueobject

import (
	"errors"
	"time"
)

// WindowSummary — производная сводка окна монитора (Value Object).
// Вычисляется заново на каждом подходящем событии и не сохраняется.
type WindowSummary struct {
	monitorID   string
	at          time.Time
	vector      FeatureVector
	sampleCount int
}

// NewWindowSummary создает сводку окна
func NewWindowSummary(monitorID string, at time.Time, vector FeatureVector, sampleCount int) (WindowSummary, error) {
	if monitorID == "" {
		return WindowSummary{}, errors.New("monitor id is required")
	}
	if sampleCount < 1 {
		return WindowSummary{}, errors.New("sample count must be positive")
	}

	return WindowSummary{
		monitorID:   monitorID,
		at:          at,
		vector:      vector,
		sampleCount: sampleCount,
	}, nil
}

// MonitorID возвращает монитор, по которому построена сводка
func (ws WindowSummary) MonitorID() string {
	return ws.monitorID
}

// At возвращает время самого свежего события в окне
func (ws WindowSummary) At() time.Time {
	return ws.at
}

// Vector возвращает вектор признаков сводки
func (ws WindowSummary) Vector() FeatureVector {
	return ws.vector
}

// SampleCount возвращает число событий, вошедших в сводку
func (ws WindowSummary) SampleCount() int {
	return ws.sampleCount
}
