package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

// OilTelemetryCollector синтезирует показания маслосистемы из метрик хоста.
// Реализует port.TelemetryCollector. Используется в демо-режиме и
// trend-seeder'ом: нагрузка машины превращается в правдоподобную
// телеметрию, на которой можно обучать и проверять модели без стенда.
type OilTelemetryCollector struct{}

// NewOilTelemetryCollector создает новый collector
func NewOilTelemetryCollector() *OilTelemetryCollector {
	return &OilTelemetryCollector{}
}

// Collect снимает текущее показание: каждый сенсор — функция одной
// метрики хоста, отображенной в физически осмысленный диапазон
func (c *OilTelemetryCollector) Collect(ctx context.Context, monitorID string) (*entity.Reading, error) {
	sensors := make(map[string]float64, 6)

	// Температура масла: загрузка CPU 0..100% -> 40..90°C
	percentages, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err == nil && len(percentages) > 0 {
		sensors["oil_temperature"] = 40 + percentages[0]/100*50
	}

	// Влагосодержание и активность воды: занятость памяти
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sensors["moisture"] = vm.UsedPercent / 100 * 0.08
		sensors["water_activity"] = vm.UsedPercent / 100
	}

	// Кинематическая вязкость: load average -> 30..80 сСт
	if avg, err := load.AvgWithContext(ctx); err == nil {
		viscosity := 30 + avg.Load1*10
		if viscosity > 80 {
			viscosity = 80
		}
		sensors["kinematic_viscosity"] = viscosity
	}

	// Плотность и диэлектрическая проницаемость: занятость диска
	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		sensors["oil_density"] = 0.85 + usage.UsedPercent/100*0.05
		sensors["dielectric_constant"] = 2.1 + usage.UsedPercent/100*0.4
	}

	return entity.NewReading(monitorID, time.Now().UTC(), sensors)
}
