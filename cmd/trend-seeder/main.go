package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/collector"
	"github.com/dreschagin/anomaly-engine/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/anomaly-engine/pkg/config"
	"github.com/dreschagin/anomaly-engine/pkg/logger"

	_ "github.com/lib/pq"
)

// trend-seeder наполняет таблицу trend_readings телеметрией локального
// хоста, чтобы было на чем обучать модели без живого потока.
// Показания снимаются сейчас, но раскладываются назад во времени
// с заданным шагом: история выглядит как настоящий тренд.
func main() {
	monitorID := flag.String("monitor", "local-host", "monitor id to seed history for")
	samples := flag.Int("samples", 200, "number of readings to generate")
	step := flag.Duration("step", time.Minute, "spacing between backdated readings")
	batchSize := flag.Int("batch", 50, "readings per insert batch")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting trend seeder",
		"monitor_id", *monitorID,
		"samples", *samples,
		"step", step.String())

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Error("Failed to ping database", err)
		os.Exit(1)
	}

	trendRepository := postgres.NewTrendRepository(db)
	telemetryCollector := collector.NewOilTelemetryCollector()

	ctx := context.Background()
	newest := time.Now().UTC()

	batch := make([]*entity.Reading, 0, *batchSize)
	seeded := 0
	for i := 0; i < *samples; i++ {
		collected, err := telemetryCollector.Collect(ctx, *monitorID)
		if err != nil {
			log.Warn("Skipping failed collection", "error", err.Error())
			continue
		}

		// самое старое показание — первым, самое свежее — последним
		observedAt := newest.Add(-time.Duration(*samples-1-i) * (*step))
		reading, err := entity.NewReading(*monitorID, observedAt, collected.Sensors())
		if err != nil {
			log.Warn("Skipping invalid reading", "error", err.Error())
			continue
		}
		batch = append(batch, reading)

		if len(batch) >= *batchSize {
			if err := trendRepository.SaveBatch(ctx, batch); err != nil {
				log.Error("Failed to save batch", err)
				os.Exit(1)
			}
			seeded += len(batch)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := trendRepository.SaveBatch(ctx, batch); err != nil {
			log.Error("Failed to save batch", err)
			os.Exit(1)
		}
		seeded += len(batch)
	}

	log.Info("Trend history seeded",
		"monitor_id", *monitorID,
		"readings", seeded,
		"from", newest.Add(-time.Duration(*samples-1)*(*step)).Format(time.RFC3339),
		"to", newest.Format(time.RFC3339))
}
