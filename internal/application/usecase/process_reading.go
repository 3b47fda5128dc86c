package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/anomaly-engine/internal/application/modelcache"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/service"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// ProcessReadingConfig задает параметры конвейера одного шарда
type ProcessReadingConfig struct {
	Window      service.WindowPolicy
	Detector    service.DetectorPolicy
	SensorCodes []string // пустой список — принимать все сенсоры
	TopSensors  int      // сколько сенсоров объяснения класть в вердикт
}

// ProcessReadingUseCase прогоняет одно событие через конвейер:
// окно -> модель -> масштабирование -> счет -> решение.
//
// Экземпляр принадлежит одной воркер-горутине и хранит ее состояние
// (окна и гистерезис ее мониторов), поэтому сам не потокобезопасен.
// Разделяемые зависимости (кэш моделей, счетчики) потокобезопасны.
type ProcessReadingUseCase struct {
	config    ProcessReadingConfig
	models    *modelcache.Cache
	scaler    *service.Scaler
	predictor *service.Predictor
	detector  *service.AnomalyDetector
	windows   map[string]*service.SlidingWindow
	metrics   *stats.Stats
	logger    *logger.Logger
}

// NewProcessReadingUseCase создает конвейер одного шарда
func NewProcessReadingUseCase(
	config ProcessReadingConfig,
	models *modelcache.Cache,
	metrics *stats.Stats,
	log *logger.Logger,
) *ProcessReadingUseCase {
	if config.TopSensors < 1 {
		config.TopSensors = 3
	}
	return &ProcessReadingUseCase{
		config:    config,
		models:    models,
		scaler:    service.NewScaler(),
		predictor: service.NewPredictor(),
		detector:  service.NewAnomalyDetector(config.Detector),
		windows:   make(map[string]*service.SlidingWindow),
		metrics:   metrics,
		logger:    log,
	}
}

// Execute обрабатывает одно событие.
// Возвращает (nil, nil), когда вердикта пока нет: окно не заполнено
// или событие отброшено как опоздавшее. Ошибка означает пропуск окна,
// поток при этом продолжает работать.
func (uc *ProcessReadingUseCase) Execute(ctx context.Context, reading *entity.Reading) (*entity.AnomalyVerdict, error) {
	uc.metrics.ReadingIn()

	// 1. Ограничиваем событие настроенным набором сенсоров
	if len(uc.config.SensorCodes) > 0 {
		filtered, err := reading.Filter(uc.config.SensorCodes)
		if err != nil {
			uc.metrics.InvalidReading()
			return nil, err
		}
		reading = filtered
	}

	// 2. Добавляем в окно монитора
	window, ok := uc.windows[reading.MonitorID()]
	if !ok {
		window = service.NewSlidingWindow(reading.MonitorID(), uc.config.Window)
		uc.windows[reading.MonitorID()] = window
	}

	lateBefore := window.LateDrops()
	summary := window.Ingest(reading)
	if window.LateDrops() > lateBefore {
		uc.metrics.LateDrop()
		uc.logger.Debug("late reading dropped",
			"monitor_id", reading.MonitorID(),
			"timestamp", reading.Timestamp())
		return nil, nil
	}
	if summary == nil {
		return nil, nil
	}
	uc.metrics.SummaryEmitted()

	// 3. Разрешаем модель монитора
	resolution, err := uc.models.Resolve(ctx, reading.MonitorID())
	if err != nil {
		if errors.Is(err, modelcache.ErrModelUnavailable) {
			uc.logger.Warn("skipping window, model unavailable",
				"monitor_id", reading.MonitorID())
		}
		return nil, err
	}
	if resolution.Degraded {
		uc.metrics.DegradedVerdict()
	}

	// 4. Масштабируем сводку scaler'ом артефакта
	scaled, err := uc.scaler.Transform(resolution.Artifact, *summary)
	if err != nil {
		if errors.Is(err, service.ErrSchemaMismatch) {
			// постоянная ошибка конфигурации, переобучение не запускаем
			uc.metrics.SchemaMismatch()
			uc.logger.Error("window schema does not match model", err,
				"monitor_id", reading.MonitorID(),
				"model_version", resolution.Artifact.Version())
		}
		return nil, fmt.Errorf("scale window summary: %w", err)
	}

	// 5. Счет и решение
	score := uc.predictor.Score(resolution.Artifact, scaled)
	topSensors := uc.predictor.ContributingSensors(scaled, uc.config.TopSensors)

	verdict := uc.detector.Decide(
		*summary,
		score,
		resolution.Degraded,
		resolution.Artifact.Version(),
		topSensors,
	)

	uc.metrics.Verdict()
	if verdict.IsAnomalous() {
		uc.metrics.Anomaly()
		uc.logger.Info("anomaly detected",
			"monitor_id", verdict.MonitorID(),
			"score", verdict.Score(),
			"threshold", uc.detector.Threshold(verdict.MonitorID()),
			"model_version", verdict.ModelVersion(),
			"degraded", verdict.IsDegraded())
	}

	return verdict, nil
}

// Threshold возвращает действующий порог монитора
func (uc *ProcessReadingUseCase) Threshold(monitorID string) float64 {
	return uc.detector.Threshold(monitorID)
}

// ForgetMonitor удаляет состояние монитора из шарда (окно и гистерезис)
func (uc *ProcessReadingUseCase) ForgetMonitor(monitorID string) {
	delete(uc.windows, monitorID)
	uc.detector.Forget(monitorID)
}

// WindowCount возвращает число открытых окон шарда
func (uc *ProcessReadingUseCase) WindowCount() int {
	return len(uc.windows)
}
