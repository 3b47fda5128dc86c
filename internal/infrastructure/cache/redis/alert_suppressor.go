package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertSuppressor implements alert deduplication using Redis.
// Ключ на монитор с TTL: пока ключ жив, повторные алерты подавляются.
// Хранится вне процесса, поэтому подавление переживает рестарт движка
// и действует на все его экземпляры.
type AlertSuppressor struct {
	client    *redis.Client
	keyPrefix string
}

// NewAlertSuppressor creates a new Redis-backed suppressor
func NewAlertSuppressor(host, port, password string, db, poolSize, minIdleConns int, dialTimeout, readTimeout, writeTimeout time.Duration) (*AlertSuppressor, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		MaxRetries:   3,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &AlertSuppressor{
		client:    client,
		keyPrefix: "anomaly:suppress:",
	}, nil
}

// Suppressed сообщает, жив ли ключ подавления монитора
func (s *AlertSuppressor) Suppressed(ctx context.Context, monitorID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.key(monitorID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check suppression key: %w", err)
	}
	return exists > 0, nil
}

// Mark подавляет алерты монитора на время ttl
func (s *AlertSuppressor) Mark(ctx context.Context, monitorID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(monitorID), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set suppression key: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *AlertSuppressor) Close() error {
	return s.client.Close()
}

func (s *AlertSuppressor) key(monitorID string) string {
	return s.keyPrefix + monitorID
}
