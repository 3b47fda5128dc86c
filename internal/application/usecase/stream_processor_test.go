package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/application/dto"
	"github.com/dreschagin/anomaly-engine/internal/application/modelcache"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

func newTestProcessor(t *testing.T, store *pipelineMockStore, engineStats *stats.Stats, publisher *mockAlertPublisher) *StreamProcessor {
	t.Helper()
	models := modelcache.New(store, &pipelineMockBuilder{}, nil, pipelineCacheConfig(), engineStats, logger.New("error"))
	emitter := NewEmitAlertUseCase(emitConfig(), publisher, nil, nil, engineStats, logger.New("error"))
	return NewStreamProcessor(StreamProcessorConfig{
		Shards:    4,
		QueueSize: 16,
		Pipeline:  pipelineConfig(),
	}, models, emitter, engineStats, logger.New("error"))
}

func TestStreamProcessor_EmitsAlertForAnomalousStream(t *testing.T) {
	store := &pipelineMockStore{
		artifacts: map[string]*entity.ModelArtifact{"pump-1": pipelineArtifact("pump-1")},
	}
	engineStats := stats.New()
	publisher := &mockAlertPublisher{}
	processor := newTestProcessor(t, store, engineStats, publisher)

	ctx := context.Background()
	processor.Start(ctx)

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal(dto.ReadingDTO{
			MonitorID: "pump-1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Sensors:   map[string]float64{"moisture": 0.13, "oil_temperature": 110},
		})
		if err := processor.Submit(ctx, payload); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	processor.Stop()

	publisher.mu.Lock()
	calls := publisher.calls
	publisher.mu.Unlock()
	// K=2: второе и третье окна аномальны
	if calls != 2 {
		t.Fatalf("expected 2 published alerts, got %d", calls)
	}
	if engineStats.Snapshot().Anomalies != 2 {
		t.Fatalf("expected 2 anomalies, got %d", engineStats.Snapshot().Anomalies)
	}
}

func TestStreamProcessor_MalformedPayloadIsCountedAndDropped(t *testing.T) {
	engineStats := stats.New()
	processor := newTestProcessor(t, &pipelineMockStore{}, engineStats, &mockAlertPublisher{})

	ctx := context.Background()
	processor.Start(ctx)
	defer processor.Stop()

	if err := processor.Submit(ctx, []byte("{not json")); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := processor.Submit(ctx, []byte(`{"monitor_id":"","timestamp":"2026-08-24T10:00:00Z","sensors":{"a":1}}`)); err == nil {
		t.Fatalf("expected validation error")
	}
	if engineStats.Snapshot().InvalidReadings != 2 {
		t.Fatalf("expected 2 invalid readings, got %d", engineStats.Snapshot().InvalidReadings)
	}
}

func TestStreamProcessor_MonitorAlwaysLandsOnSameShard(t *testing.T) {
	processor := newTestProcessor(t, &pipelineMockStore{}, stats.New(), &mockAlertPublisher{})

	for monitor := 0; monitor < 20; monitor++ {
		id := fmt.Sprintf("pump-%d", monitor)
		first := processor.shard(id)
		for i := 0; i < 10; i++ {
			if processor.shard(id) != first {
				t.Fatalf("shard for %s is not stable", id)
			}
		}
	}
}

func TestStreamProcessor_StopDrainsQueues(t *testing.T) {
	store := &pipelineMockStore{
		artifacts: map[string]*entity.ModelArtifact{"pump-9": pipelineArtifact("pump-9")},
	}
	engineStats := stats.New()
	processor := newTestProcessor(t, store, engineStats, &mockAlertPublisher{})

	ctx := context.Background()
	processor.Start(ctx)

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	const total = 50
	for i := 0; i < total; i++ {
		reading := mustReading(t, "pump-9", base.Add(time.Duration(i)*time.Second), 0.03, 60)
		if err := processor.SubmitReading(ctx, reading); err != nil {
			t.Fatalf("SubmitReading() error = %v", err)
		}
	}

	processor.Stop()

	if got := engineStats.Snapshot().ReadingsIn; got != total {
		t.Fatalf("expected all %d readings processed before stop, got %d", total, got)
	}
}

func TestStreamProcessor_StopIsSafeWithConcurrentProducers(t *testing.T) {
	processor := newTestProcessor(t, &pipelineMockStore{}, stats.New(), &mockAlertPublisher{})

	ctx := context.Background()
	processor.Start(ctx)

	// продюсеры шлют события непрерывно, пока Stop не остановит прием
	var wg sync.WaitGroup
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	for producer := 0; producer < 4; producer++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			monitorID := fmt.Sprintf("pump-%d", producer)
			for i := 0; ; i++ {
				reading := mustReading(t, monitorID, base.Add(time.Duration(i)*time.Second), 0.03, 60)
				if err := processor.SubmitReading(ctx, reading); err != nil {
					if !errors.Is(err, ErrProcessorStopped) {
						t.Errorf("SubmitReading() error = %v, want ErrProcessorStopped", err)
					}
					return
				}
			}
		}(producer)
	}

	time.Sleep(20 * time.Millisecond)
	processor.Stop()
	wg.Wait()

	reading := mustReading(t, "pump-0", base.Add(time.Hour), 0.03, 60)
	if err := processor.SubmitReading(ctx, reading); !errors.Is(err, ErrProcessorStopped) {
		t.Fatalf("SubmitReading() after Stop = %v, want ErrProcessorStopped", err)
	}
}
