package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidReading помечает входное событие, отброшенное на валидации.
// Такие события считаются в метриках и никогда не валят поток.
var ErrInvalidReading = errors.New("invalid reading")

// Reading представляет одно телеметрическое событие монитора.
// Иммутабельный объект: после создания не изменяется.
type Reading struct {
	monitorID string
	timestamp time.Time
	sensors   map[string]float64
}

// NewReading создает Reading с валидацией входных данных
func NewReading(monitorID string, timestamp time.Time, sensors map[string]float64) (*Reading, error) {
	if monitorID == "" {
		return nil, fmt.Errorf("%w: monitor id is required", ErrInvalidReading)
	}
	if timestamp.IsZero() {
		return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}
	if len(sensors) == 0 {
		return nil, fmt.Errorf("%w: at least one sensor value is required", ErrInvalidReading)
	}

	copied := make(map[string]float64, len(sensors))
	for code, value := range sensors {
		if code == "" {
			return nil, fmt.Errorf("%w: empty sensor code", ErrInvalidReading)
		}
		copied[code] = value
	}

	return &Reading{
		monitorID: monitorID,
		timestamp: timestamp,
		sensors:   copied,
	}, nil
}

// MonitorID возвращает идентификатор монитора
func (r *Reading) MonitorID() string {
	return r.monitorID
}

// Timestamp возвращает время события (присвоенное источником)
func (r *Reading) Timestamp() time.Time {
	return r.timestamp
}

// Sensors возвращает копию значений сенсоров
func (r *Reading) Sensors() map[string]float64 {
	result := make(map[string]float64, len(r.sensors))
	for code, value := range r.sensors {
		result[code] = value
	}
	return result
}

// Sensor возвращает значение конкретного сенсора
func (r *Reading) Sensor(code string) (float64, bool) {
	value, ok := r.sensors[code]
	return value, ok
}

// SensorCount возвращает количество сенсоров в событии
func (r *Reading) SensorCount() int {
	return len(r.sensors)
}

// Filter возвращает новый Reading только с указанными сенсорами.
// Используется когда движок ограничен настроенным набором кодов.
func (r *Reading) Filter(codes []string) (*Reading, error) {
	filtered := make(map[string]float64, len(codes))
	for _, code := range codes {
		if value, ok := r.sensors[code]; ok {
			filtered[code] = value
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: no configured sensors present", ErrInvalidReading)
	}
	return &Reading{
		monitorID: r.monitorID,
		timestamp: r.timestamp,
		sensors:   filtered,
	}, nil
}
