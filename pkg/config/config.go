package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Security   SecurityConfig
	Engine     EngineConfig
	ModelCache ModelCacheConfig
	NATS       NATSConfig
	S3         S3Config
	Dynamo     DynamoConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	CloudWatch CloudWatchConfig
	Collector  CollectorConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SecurityConfig защищает операционные endpoint'ы (/stats, /ws/alerts).
// Baseline bearer token; health-пробы всегда открыты.
type SecurityConfig struct {
	AuthEnabled    bool
	AuthToken      string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// EngineConfig описывает параметры потокового движка:
// окна, пороги, гистерезис и шардирование по мониторам.
type EngineConfig struct {
	WindowSpan         time.Duration
	WindowMaxCount     int
	MinSamples         int
	EmitStride         int
	LatenessTolerance  time.Duration
	DefaultThreshold   float64
	ThresholdOverrides map[string]float64
	BreachCount        int
	WorkerShards       int
	QueueSize          int
	PublishRetries     int
	PublishRateLimit   float64 // alerts per second, 0 = unlimited
	SensorCodes        []string
	SuppressionTTL     time.Duration
}

type ModelCacheConfig struct {
	Capacity       int
	Freshness      time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	LoadTimeout    time.Duration
	BuildTimeout   time.Duration
	TrendSpan      time.Duration
}

type NATSConfig struct {
	Enabled      bool
	URL          string
	InputSubject string
	AlertSubject string
	QueueGroup   string
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type DynamoConfig struct {
	Enabled         bool
	TableModels     string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type CloudWatchConfig struct {
	MetricsEnabled       bool
	LogsEnabled          bool
	Region               string
	Endpoint             string
	AccessKeyID          string
	SecretAccessKey      string
	MetricsNamespace     string
	MetricsBufferSize    int
	MetricsFlushInterval time.Duration
	LogGroupName         string
	LogStreamName        string
	LogsBufferSize       int
	LogsFlushInterval    time.Duration
}

type CollectorConfig struct {
	Enabled   bool
	MonitorID string
	Interval  time.Duration
}

// DSN собирает строку подключения PostgreSQL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	windowSpan, err := parseDuration(getEnv("WINDOW_SPAN", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_SPAN: %w", err)
	}

	windowMaxCount, err := strconv.Atoi(getEnv("WINDOW_MAX_COUNT", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_MAX_COUNT: %w", err)
	}

	minSamples, err := strconv.Atoi(getEnv("WINDOW_MIN_SAMPLES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_MIN_SAMPLES: %w", err)
	}

	emitStride, err := strconv.Atoi(getEnv("WINDOW_EMIT_STRIDE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_EMIT_STRIDE: %w", err)
	}
	if emitStride < 1 {
		return nil, fmt.Errorf("WINDOW_EMIT_STRIDE must be >= 1, got %d", emitStride)
	}

	latenessTolerance, err := parseDuration(getEnv("LATENESS_TOLERANCE", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LATENESS_TOLERANCE: %w", err)
	}

	defaultThreshold, err := strconv.ParseFloat(getEnv("ANOMALY_THRESHOLD", "0.8"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ANOMALY_THRESHOLD: %w", err)
	}
	if defaultThreshold <= 0 || defaultThreshold >= 1 {
		return nil, fmt.Errorf("ANOMALY_THRESHOLD must be in (0, 1), got %v", defaultThreshold)
	}

	thresholdOverrides, err := parseThresholdOverrides(getEnv("ANOMALY_THRESHOLD_OVERRIDES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ANOMALY_THRESHOLD_OVERRIDES: %w", err)
	}

	breachCount, err := strconv.Atoi(getEnv("HYSTERESIS_BREACH_COUNT", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid HYSTERESIS_BREACH_COUNT: %w", err)
	}
	if breachCount < 1 {
		return nil, fmt.Errorf("HYSTERESIS_BREACH_COUNT must be >= 1, got %d", breachCount)
	}

	workerShards, err := strconv.Atoi(getEnv("WORKER_SHARDS", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_SHARDS: %w", err)
	}
	if workerShards < 1 {
		return nil, fmt.Errorf("WORKER_SHARDS must be >= 1, got %d", workerShards)
	}

	queueSize, err := strconv.Atoi(getEnv("WORKER_QUEUE_SIZE", "256"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_QUEUE_SIZE: %w", err)
	}

	publishRetries, err := strconv.Atoi(getEnv("PUBLISH_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_RETRIES: %w", err)
	}

	publishRateLimit, err := strconv.ParseFloat(getEnv("PUBLISH_RATE_LIMIT", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_RATE_LIMIT: %w", err)
	}

	suppressionTTL, err := parseDuration(getEnv("ALERT_SUPPRESSION_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_SUPPRESSION_TTL: %w", err)
	}

	cacheCapacity, err := strconv.Atoi(getEnv("MODEL_CACHE_CAPACITY", "32"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_CACHE_CAPACITY: %w", err)
	}
	if cacheCapacity < 1 {
		return nil, fmt.Errorf("MODEL_CACHE_CAPACITY must be >= 1, got %d", cacheCapacity)
	}

	freshness, err := parseDuration(getEnv("MODEL_FRESHNESS", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_FRESHNESS: %w", err)
	}

	backoffBase, err := parseDuration(getEnv("MODEL_BACKOFF_BASE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_BACKOFF_BASE: %w", err)
	}

	backoffCeiling, err := parseDuration(getEnv("MODEL_BACKOFF_CEILING", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_BACKOFF_CEILING: %w", err)
	}

	loadTimeout, err := parseDuration(getEnv("MODEL_LOAD_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_LOAD_TIMEOUT: %w", err)
	}

	buildTimeout, err := parseDuration(getEnv("MODEL_BUILD_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_BUILD_TIMEOUT: %w", err)
	}

	trendSpan, err := parseDuration(getEnv("TREND_SPAN", "2160h")) // ~3 months
	if err != nil {
		return nil, fmt.Errorf("invalid TREND_SPAN: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	collectorInterval, err := parseDuration(getEnv("COLLECTOR_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTOR_INTERVAL: %w", err)
	}

	rateLimitRPS, err := strconv.ParseFloat(getEnv("HTTP_RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_RATE_LIMIT_RPS: %w", err)
	}

	rateLimitBurst, err := strconv.Atoi(getEnv("HTTP_RATE_LIMIT_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_RATE_LIMIT_BURST: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_TOKEN", ""),
			AllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
		Engine: EngineConfig{
			WindowSpan:         windowSpan,
			WindowMaxCount:     windowMaxCount,
			MinSamples:         minSamples,
			EmitStride:         emitStride,
			LatenessTolerance:  latenessTolerance,
			DefaultThreshold:   defaultThreshold,
			ThresholdOverrides: thresholdOverrides,
			BreachCount:        breachCount,
			WorkerShards:       workerShards,
			QueueSize:          queueSize,
			PublishRetries:     publishRetries,
			PublishRateLimit:   publishRateLimit,
			SensorCodes:        getEnvList("SENSOR_CODES", nil),
			SuppressionTTL:     suppressionTTL,
		},
		ModelCache: ModelCacheConfig{
			Capacity:       cacheCapacity,
			Freshness:      freshness,
			BackoffBase:    backoffBase,
			BackoffCeiling: backoffCeiling,
			LoadTimeout:    loadTimeout,
			BuildTimeout:   buildTimeout,
			TrendSpan:      trendSpan,
		},
		NATS: NATSConfig{
			Enabled:      getEnvBool("NATS_ENABLED", true),
			URL:          getEnv("NATS_URL", "nats://localhost:4222"),
			InputSubject: getEnv("NATS_INPUT_SUBJECT", "telemetry.readings"),
			AlertSubject: getEnv("NATS_ALERT_SUBJECT", "telemetry.alerts"),
			QueueGroup:   getEnv("NATS_QUEUE_GROUP", "anomaly-engine"),
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", true),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", os.Getenv("AWS_ACCESS_KEY_ID")),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", os.Getenv("AWS_SECRET_ACCESS_KEY")),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "model-artifacts"),
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMO_ENABLED", false),
			TableModels:     getEnv("DYNAMO_TABLE_MODELS", "model-registry"),
			Region:          getEnv("DYNAMO_REGION", "us-east-1"),
			Endpoint:        getEnv("DYNAMO_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMO_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMO_SECRET_ACCESS_KEY", ""),
			StrongReads:     getEnvBool("DYNAMO_STRONG_READS", false),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", true),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "telemetry"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:       getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:          getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:               getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:             getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:          getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			MetricsNamespace:     getEnv("CLOUDWATCH_METRICS_NAMESPACE", "AnomalyEngine/Stream"),
			MetricsBufferSize:    100,
			MetricsFlushInterval: 10 * time.Second,
			LogGroupName:         getEnv("CLOUDWATCH_LOG_GROUP", "/anomaly-engine/alerts"),
			LogStreamName:        getEnv("CLOUDWATCH_LOG_STREAM", "alerts"),
			LogsBufferSize:       50,
			LogsFlushInterval:    5 * time.Second,
		},
		Collector: CollectorConfig{
			Enabled:   getEnvBool("COLLECTOR_ENABLED", false),
			MonitorID: getEnv("COLLECTOR_MONITOR_ID", "local-host"),
			Interval:  collectorInterval,
		},
	}

	if cfg.Engine.MinSamples < 1 {
		return nil, fmt.Errorf("WINDOW_MIN_SAMPLES must be >= 1, got %d", cfg.Engine.MinSamples)
	}
	if cfg.Engine.WindowMaxCount < cfg.Engine.MinSamples {
		return nil, fmt.Errorf("WINDOW_MAX_COUNT (%d) must be >= WINDOW_MIN_SAMPLES (%d)",
			cfg.Engine.WindowMaxCount, cfg.Engine.MinSamples)
	}
	if cfg.Security.AuthEnabled && strings.TrimSpace(cfg.Security.AuthToken) == "" {
		return nil, fmt.Errorf("AUTH_TOKEN must be set when AUTH_ENABLED=true")
	}
	if cfg.ModelCache.BackoffCeiling < cfg.ModelCache.BackoffBase {
		return nil, fmt.Errorf("MODEL_BACKOFF_CEILING (%s) must be >= MODEL_BACKOFF_BASE (%s)",
			cfg.ModelCache.BackoffCeiling, cfg.ModelCache.BackoffBase)
	}

	return cfg, nil
}

// parseThresholdOverrides разбирает строку вида "m1:0.9,m2:0.75"
func parseThresholdOverrides(raw string) (map[string]float64, error) {
	overrides := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return overrides, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected monitor:threshold, got %q", pair)
		}
		monitorID := strings.TrimSpace(parts[0])
		threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("threshold for %q: %w", monitorID, err)
		}
		if threshold <= 0 || threshold >= 1 {
			return nil, fmt.Errorf("threshold for %q must be in (0, 1), got %v", monitorID, threshold)
		}
		overrides[monitorID] = threshold
	}

	return overrides, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}
