package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// ReadingDTO представляет входное телеметрическое событие на проводе.
// Формат сообщения во входном стриме:
//
//	{"monitor_id": "pump-17", "timestamp": "2026-08-24T10:00:00Z",
//	 "sensors": {"oil_temperature": 61.2, "moisture": 0.031}}
type ReadingDTO struct {
	MonitorID string             `json:"monitor_id"`
	Timestamp time.Time          `json:"timestamp"`
	Sensors   map[string]float64 `json:"sensors"`
}

// ParseReading разбирает сырое сообщение стрима в DTO.
// Синтаксическая ошибка JSON и семантическая невалидность различаются
// только на следующем шаге (ToEntity), здесь — чистый разбор.
func ParseReading(data []byte) (*ReadingDTO, error) {
	var reading ReadingDTO
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", entity.ErrInvalidReading, err)
	}
	return &reading, nil
}

// ToEntity конвертирует DTO в Domain Entity с валидацией
func (r *ReadingDTO) ToEntity() (*entity.Reading, error) {
	return entity.NewReading(r.MonitorID, r.Timestamp, r.Sensors)
}

// FromReadingEntity конвертирует Domain Entity в DTO
func FromReadingEntity(reading *entity.Reading) *ReadingDTO {
	return &ReadingDTO{
		MonitorID: reading.MonitorID(),
		Timestamp: reading.Timestamp(),
		Sensors:   reading.Sensors(),
	}
}
