package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Application
	"github.com/dreschagin/anomaly-engine/internal/application/modelcache"
	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/application/usecase"

	// Domain
	"github.com/dreschagin/anomaly-engine/internal/domain/service"

	// Infrastructure
	redisCache "github.com/dreschagin/anomaly-engine/internal/infrastructure/cache/redis"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/collector"
	natsMessaging "github.com/dreschagin/anomaly-engine/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/anomaly-engine/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/anomaly-engine/internal/infrastructure/storage/s3"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/training"

	// Interfaces
	httpInterface "github.com/dreschagin/anomaly-engine/internal/interfaces/http"
	"github.com/dreschagin/anomaly-engine/internal/interfaces/http/handler"
	"github.com/dreschagin/anomaly-engine/internal/interfaces/http/middleware"
	"github.com/dreschagin/anomaly-engine/internal/metrics"

	// Shared
	"github.com/dreschagin/anomaly-engine/pkg/config"
	"github.com/dreschagin/anomaly-engine/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting Anomaly Engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Опциональная отправка логов в CloudWatch Logs
	if cfg.CloudWatch.LogsEnabled {
		logsPublisher, err := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferSize:      cfg.CloudWatch.LogsBufferSize,
			FlushInterval:   cfg.CloudWatch.LogsFlushInterval,
			AutoCreate:      true,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", err)
			os.Exit(1)
		}
		log.SetLogPublisher(logsPublisher)
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = logsPublisher.Close(shutdownCtx)
		}()
		log.Info("CloudWatch logs publisher enabled", "log_group", cfg.CloudWatch.LogGroupName)
	}

	// 3. Подключаемся к БД с историей трендов
	if !cfg.Database.Enabled {
		log.Error("Database is required: model training reads trend history from PostgreSQL", nil)
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	// Настраиваем connection pool
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.Error("Failed to ping database", err)
		os.Exit(1)
	}
	log.Info("Database connected successfully")

	// 4. Dependency Injection - Infrastructure Layer

	engineStats := stats.New()

	// Хранилище артефактов моделей
	if !cfg.S3.Enabled {
		log.Error("S3 is required: model artifacts are loaded from object storage", nil)
		os.Exit(1)
	}
	artifactStore, err := s3storage.NewArtifactStore(ctx, s3storage.Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
		KeyPrefix:       cfg.S3.KeyPrefix,
	})
	if err != nil {
		log.Error("Failed to initialize artifact store", err)
		os.Exit(1)
	}

	// История трендов и обучение
	trendRepository := postgres.NewTrendRepository(db)
	modelBuilder := training.NewBuilder(trendRepository, training.Config{
		TrendSpan:   cfg.ModelCache.TrendSpan,
		MinSamples:  cfg.Engine.MinSamples,
		Sensitivity: 2.0,
		SensorCodes: cfg.Engine.SensorCodes,
	}, log)

	// Реестр обученных версий (опционален)
	var modelRegistry port.ModelRegistry
	if cfg.Dynamo.Enabled {
		registry, err := dynamodb.NewModelRegistry(ctx, dynamodb.Config{
			TableName:       cfg.Dynamo.TableModels,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			StrongReads:     cfg.Dynamo.StrongReads,
		})
		if err != nil {
			log.Error("Failed to initialize model registry", err)
			os.Exit(1)
		}
		modelRegistry = registry
	} else {
		log.Warn("DynamoDB model registry is disabled, trained versions will not be recorded")
	}

	// Подавление повторных алертов (опционально)
	var alertSuppressor port.AlertSuppressor
	if cfg.Redis.Enabled {
		suppressor, err := redisCache.NewAlertSuppressor(
			cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password,
			cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns,
			cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout,
		)
		if err != nil {
			log.Error("Failed to connect to Redis", err)
			os.Exit(1)
		}
		alertSuppressor = suppressor
		defer suppressor.Close()
	} else {
		log.Warn("Redis is disabled, duplicate alerts will not be suppressed")
	}

	// NATS: входной поток показаний и выходной поток алертов
	if !cfg.NATS.Enabled {
		log.Error("NATS is required: readings arrive and alerts leave through JetStream", nil)
		os.Exit(1)
	}
	alertPublisher, err := natsMessaging.NewAlertPublisher(cfg.NATS.URL, log)
	if err != nil {
		log.Error("Failed to connect NATS publisher", err)
		os.Exit(1)
	}
	defer alertPublisher.Close()

	readingConsumer, err := natsMessaging.NewReadingConsumer(
		cfg.NATS.URL, cfg.NATS.InputSubject, cfg.NATS.QueueGroup, log)
	if err != nil {
		log.Error("Failed to connect NATS consumer", err)
		os.Exit(1)
	}
	defer readingConsumer.Close()

	// WebSocket Hub
	hub := wsInfra.NewHub(log)

	// 5. Dependency Injection - Application Layer

	modelCache := modelcache.New(artifactStore, modelBuilder, modelRegistry, modelcache.Config{
		Capacity:       cfg.ModelCache.Capacity,
		Freshness:      cfg.ModelCache.Freshness,
		BackoffBase:    cfg.ModelCache.BackoffBase,
		BackoffCeiling: cfg.ModelCache.BackoffCeiling,
		LoadTimeout:    cfg.ModelCache.LoadTimeout,
		BuildTimeout:   cfg.ModelCache.BuildTimeout,
	}, engineStats, log)

	emitAlertUC := usecase.NewEmitAlertUseCase(usecase.EmitAlertConfig{
		Subject:        cfg.NATS.AlertSubject,
		Retries:        cfg.Engine.PublishRetries,
		RateLimit:      cfg.Engine.PublishRateLimit,
		SuppressionTTL: cfg.Engine.SuppressionTTL,
	}, alertPublisher, alertSuppressor, hub, engineStats, log)

	streamProcessor := usecase.NewStreamProcessor(usecase.StreamProcessorConfig{
		Shards:    cfg.Engine.WorkerShards,
		QueueSize: cfg.Engine.QueueSize,
		Pipeline: usecase.ProcessReadingConfig{
			Window: service.WindowPolicy{
				Span:              cfg.Engine.WindowSpan,
				MaxCount:          cfg.Engine.WindowMaxCount,
				MinSamples:        cfg.Engine.MinSamples,
				EmitStride:        cfg.Engine.EmitStride,
				LatenessTolerance: cfg.Engine.LatenessTolerance,
			},
			Detector: service.DetectorPolicy{
				DefaultThreshold:   cfg.Engine.DefaultThreshold,
				ThresholdOverrides: cfg.Engine.ThresholdOverrides,
				BreachCount:        cfg.Engine.BreachCount,
			},
			SensorCodes: cfg.Engine.SensorCodes,
		},
	}, modelCache, emitAlertUC, engineStats, log)

	// 6. Dependency Injection - Interfaces Layer

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(registry, engineStats,
		func() float64 { return float64(modelCache.Len()) },
		func() float64 { return float64(hub.ClientCount()) },
	)

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}
	statsHandler := handler.NewStatsHandler(engineStats, modelCache, hub, log)
	websocketHandler := handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log)

	router := httpInterface.NewRouter(
		statsHandler,
		websocketHandler,
		registry,
		httpMetrics,
		cfg.Security,
		log,
	)

	// 7. Запускаем фоновые процессы

	go hub.Run()

	streamProcessor.Start(ctx)
	log.Info("Stream processor started",
		"shards", cfg.Engine.WorkerShards,
		"queue_size", cfg.Engine.QueueSize)

	if err := readingConsumer.Start(ctx, streamProcessor.Submit); err != nil {
		log.Error("Failed to subscribe to reading stream", err)
		os.Exit(1)
	}
	log.Info("Consuming readings",
		"subject", cfg.NATS.InputSubject,
		"queue_group", cfg.NATS.QueueGroup)

	// Демо-режим: телеметрия локального хоста вместо внешнего потока
	if cfg.Collector.Enabled {
		telemetryCollector := collector.NewOilTelemetryCollector()
		go func() {
			ticker := time.NewTicker(cfg.Collector.Interval)
			defer ticker.Stop()

			log.Info("Demo telemetry collector started",
				"monitor_id", cfg.Collector.MonitorID,
				"interval", cfg.Collector.Interval.String())

			for {
				select {
				case <-ticker.C:
					reading, err := telemetryCollector.Collect(ctx, cfg.Collector.MonitorID)
					if err != nil {
						log.Error("Failed to collect telemetry", err)
						continue
					}
					if err := streamProcessor.SubmitReading(ctx, reading); err != nil {
						log.Error("Failed to submit demo reading", err)
					}
				case <-ctx.Done():
					log.Info("Demo telemetry collector stopped")
					return
				}
			}
		}()
	}

	// Периодическая отправка счетчиков в CloudWatch
	if cfg.CloudWatch.MetricsEnabled {
		statsPublisher, err := cloudwatch.NewStatsPublisher(ctx, cloudwatch.StatsPublisherConfig{
			Namespace:         cfg.CloudWatch.MetricsNamespace,
			Region:            cfg.CloudWatch.Region,
			Endpoint:          cfg.CloudWatch.Endpoint,
			AccessKeyID:       cfg.CloudWatch.AccessKeyID,
			SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
			DefaultDimensions: map[string]string{"Service": "anomaly-engine"},
			BufferSize:        cfg.CloudWatch.MetricsBufferSize,
			FlushInterval:     cfg.CloudWatch.MetricsFlushInterval,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch stats publisher", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = statsPublisher.Close(shutdownCtx)
		}()

		go func() {
			ticker := time.NewTicker(cfg.CloudWatch.MetricsFlushInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := statsPublisher.PublishBatch(ctx, engineStatsBatch(engineStats)); err != nil {
						log.Warn("Failed to publish engine stats", "error", err.Error())
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		log.Info("CloudWatch stats publisher enabled", "namespace", cfg.CloudWatch.MetricsNamespace)
	}

	// 8. Настраиваем HTTP сервер

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 9. Ожидаем сигнал для graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	// Сначала перестаем принимать события, потом дорабатываем очереди
	_ = readingConsumer.Close()
	cancel()
	streamProcessor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	log.Info("Server stopped gracefully")
}

// engineStatsBatch переводит срез счетчиков в datapoint'ы CloudWatch
func engineStatsBatch(engineStats *stats.Stats) []port.EngineStat {
	snapshot := engineStats.Snapshot()
	now := time.Now().UTC()

	counters := []struct {
		name  string
		value uint64
	}{
		{"ReadingsIn", snapshot.ReadingsIn},
		{"InvalidReadings", snapshot.InvalidReadings},
		{"LateDrops", snapshot.LateDrops},
		{"SummariesEmitted", snapshot.SummariesEmitted},
		{"Verdicts", snapshot.Verdicts},
		{"Anomalies", snapshot.Anomalies},
		{"DegradedVerdicts", snapshot.DegradedVerdicts},
		{"AlertsPublished", snapshot.AlertsPublished},
		{"AlertsSuppressed", snapshot.AlertsSuppressed},
		{"PublishFailures", snapshot.PublishFailures},
		{"CacheHits", snapshot.CacheHits},
		{"CacheMisses", snapshot.CacheMisses},
		{"CacheBuilds", snapshot.CacheBuilds},
		{"CacheEvictions", snapshot.CacheEvictions},
	}

	batch := make([]port.EngineStat, 0, len(counters))
	for _, counter := range counters {
		batch = append(batch, port.EngineStat{
			Name:      counter.name,
			Value:     float64(counter.value),
			Unit:      "count",
			Timestamp: now,
		})
	}
	return batch
}
