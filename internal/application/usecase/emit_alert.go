package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreschagin/anomaly-engine/internal/application/dto"
	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// EmitAlertConfig задает политику публикации алертов
type EmitAlertConfig struct {
	Subject        string        // subject выходного стрима
	Retries        int           // попыток публикации на алерт
	RetryDelay     time.Duration // пауза между попытками
	RateLimit      float64       // алертов в секунду, 0 — без ограничения
	SuppressionTTL time.Duration // окно подавления повторов по монитору
}

// EmitAlertUseCase публикует аномальные вердикты в выходной стрим
// и рассылает их подключенным клиентам. Подавляет повторные алерты
// одного монитора в пределах TTL. Потокобезопасен: вызывается из
// всех воркер-горутин.
type EmitAlertUseCase struct {
	config     EmitAlertConfig
	publisher  port.AlertPublisher
	suppressor port.AlertSuppressor
	notifier   port.NotificationService
	limiter    *rate.Limiter
	metrics    *stats.Stats
	logger     *logger.Logger
}

// NewEmitAlertUseCase создает новый use case.
// suppressor и notifier опциональны (nil отключает подавление и рассылку).
func NewEmitAlertUseCase(
	config EmitAlertConfig,
	publisher port.AlertPublisher,
	suppressor port.AlertSuppressor,
	notifier port.NotificationService,
	metrics *stats.Stats,
	log *logger.Logger,
) *EmitAlertUseCase {
	if config.Retries < 1 {
		config.Retries = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &EmitAlertUseCase{
		config:     config,
		publisher:  publisher,
		suppressor: suppressor,
		notifier:   notifier,
		limiter:    limiter,
		metrics:    metrics,
		logger:     log,
	}
}

// Execute публикует вердикт как алерт
func (uc *EmitAlertUseCase) Execute(ctx context.Context, verdict *entity.AnomalyVerdict, threshold float64) error {
	// 1. Подавление повторов: недавний алерт того же монитора уже ушел
	if uc.suppressor != nil {
		suppressed, err := uc.suppressor.Suppressed(ctx, verdict.MonitorID())
		if err != nil {
			// недоступный suppressor не блокирует алерты
			uc.logger.Warn("alert suppressor unavailable",
				"monitor_id", verdict.MonitorID(), "error", err.Error())
		} else if suppressed {
			uc.metrics.AlertSuppressed()
			uc.logger.Debug("alert suppressed",
				"monitor_id", verdict.MonitorID(), "score", verdict.Score())
			return nil
		}
	}

	// 2. Сглаживание всплесков
	if uc.limiter != nil {
		if err := uc.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	alert := dto.FromVerdict(verdict, threshold)

	// 3. Публикация с повторами
	var lastErr error
	for attempt := 1; attempt <= uc.config.Retries; attempt++ {
		lastErr = uc.publisher.PublishAlert(ctx, uc.config.Subject, alert)
		if lastErr == nil {
			break
		}
		uc.logger.Warn("alert publish attempt failed",
			"monitor_id", verdict.MonitorID(),
			"attempt", attempt,
			"error", lastErr.Error())
		if attempt < uc.config.Retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(uc.config.RetryDelay):
			}
		}
	}
	if lastErr != nil {
		uc.metrics.PublishFailure()
		return fmt.Errorf("publish alert for monitor %s: %w", verdict.MonitorID(), lastErr)
	}
	uc.metrics.AlertPublished()

	// 4. Отмечаем монитор в suppressor'е
	if uc.suppressor != nil && uc.config.SuppressionTTL > 0 {
		if err := uc.suppressor.Mark(ctx, verdict.MonitorID(), uc.config.SuppressionTTL); err != nil {
			uc.logger.Warn("failed to mark alert suppression",
				"monitor_id", verdict.MonitorID(), "error", err.Error())
		}
	}

	// 5. Рассылаем подключенным клиентам
	if uc.notifier != nil {
		uc.notifier.BroadcastAlert(alert)
	}

	return nil
}
