package port

import (
	"context"
	"time"
)

// EngineStat представляет один datapoint внутренней статистики движка.
type EngineStat struct {
	Name       string
	Value      float64
	Unit       string
	Timestamp  time.Time
	Dimensions map[string]string
}

// StatsPublisher defines the interface for publishing engine statistics
// to external observability platforms.
type StatsPublisher interface {
	// PublishBatch publishes multiple datapoints in a single operation.
	// Implementations should handle batching constraints (e.g., CloudWatch's 1000 metrics/request limit).
	PublishBatch(ctx context.Context, stats []EngineStat) error

	// Flush forces immediate publication of any buffered datapoints.
	// Should be called during graceful shutdown to prevent data loss.
	Flush(ctx context.Context) error
}
