package port

import (
	"context"
	"time"
)

// AlertSuppressor определяет интерфейс подавления повторных алертов (Port)
// Реализация будет в Infrastructure слое (Redis с TTL)
type AlertSuppressor interface {
	// Suppressed сообщает, подавлен ли сейчас алерт монитора
	Suppressed(ctx context.Context, monitorID string) (bool, error)

	// Mark подавляет алерты монитора на время ttl
	Mark(ctx context.Context, monitorID string, ttl time.Duration) error

	// Close closes the suppressor connection
	Close() error
}
