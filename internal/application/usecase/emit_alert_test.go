package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/application/dto"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

type mockAlertPublisher struct {
	mu        sync.Mutex
	failUntil int // число первых попыток, завершающихся ошибкой
	calls     int
	subjects  []string
}

func (m *mockAlertPublisher) PublishAlert(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.subjects = append(m.subjects, subject)
	if m.calls <= m.failUntil {
		return errors.New("broker unavailable")
	}
	return nil
}

func (m *mockAlertPublisher) Close() error { return nil }

type mockSuppressor struct {
	mu         sync.Mutex
	suppressed bool
	err        error
	marked     []string
}

func (m *mockSuppressor) Suppressed(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressed, m.err
}

func (m *mockSuppressor) Mark(_ context.Context, monitorID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, monitorID)
	return nil
}

func (m *mockSuppressor) Close() error { return nil }

type mockNotifier struct {
	mu     sync.Mutex
	alerts []*dto.AlertDTO
}

func (m *mockNotifier) BroadcastAlert(alert *dto.AlertDTO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *mockNotifier) ClientCount() int { return 0 }

func testVerdict(monitorID string) *entity.AnomalyVerdict {
	return entity.NewAnomalyVerdict(
		monitorID,
		time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		0.91,
		true,
		false,
		"v1",
		[]string{"moisture"},
		map[string]float64{"moisture": 0.13},
		5,
	)
}

func emitConfig() EmitAlertConfig {
	return EmitAlertConfig{
		Subject:        "anomaly.alerts",
		Retries:        3,
		RetryDelay:     time.Millisecond,
		SuppressionTTL: time.Minute,
	}
}

func TestEmitAlert_PublishesAndMarksSuppression(t *testing.T) {
	publisher := &mockAlertPublisher{}
	suppressor := &mockSuppressor{}
	notifier := &mockNotifier{}
	engineStats := stats.New()
	uc := NewEmitAlertUseCase(emitConfig(), publisher, suppressor, notifier, engineStats, logger.New("error"))

	if err := uc.Execute(context.Background(), testVerdict("pump-1"), 0.7); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if publisher.calls != 1 {
		t.Fatalf("expected 1 publish, got %d", publisher.calls)
	}
	if publisher.subjects[0] != "anomaly.alerts" {
		t.Fatalf("unexpected subject: %s", publisher.subjects[0])
	}
	if len(suppressor.marked) != 1 || suppressor.marked[0] != "pump-1" {
		t.Fatalf("expected suppression mark for pump-1, got %v", suppressor.marked)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Threshold != 0.7 {
		t.Fatalf("expected threshold in alert, got %v", notifier.alerts[0].Threshold)
	}
	if engineStats.Snapshot().AlertsPublished != 1 {
		t.Fatalf("expected published counter to grow")
	}
}

func TestEmitAlert_RetriesUntilSuccess(t *testing.T) {
	publisher := &mockAlertPublisher{failUntil: 2}
	uc := NewEmitAlertUseCase(emitConfig(), publisher, nil, nil, stats.New(), logger.New("error"))

	if err := uc.Execute(context.Background(), testVerdict("pump-2"), 0.7); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if publisher.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", publisher.calls)
	}
}

func TestEmitAlert_FailsAfterRetriesExhausted(t *testing.T) {
	publisher := &mockAlertPublisher{failUntil: 10}
	engineStats := stats.New()
	uc := NewEmitAlertUseCase(emitConfig(), publisher, nil, nil, engineStats, logger.New("error"))

	if err := uc.Execute(context.Background(), testVerdict("pump-3"), 0.7); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
	if publisher.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", publisher.calls)
	}
	if engineStats.Snapshot().PublishFailures != 1 {
		t.Fatalf("expected publish failure counter to grow")
	}
}

func TestEmitAlert_SuppressedAlertIsNotPublished(t *testing.T) {
	publisher := &mockAlertPublisher{}
	suppressor := &mockSuppressor{suppressed: true}
	engineStats := stats.New()
	uc := NewEmitAlertUseCase(emitConfig(), publisher, suppressor, nil, engineStats, logger.New("error"))

	if err := uc.Execute(context.Background(), testVerdict("pump-4"), 0.7); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if publisher.calls != 0 {
		t.Fatalf("suppressed alert must not be published")
	}
	if engineStats.Snapshot().AlertsSuppressed != 1 {
		t.Fatalf("expected suppressed counter to grow")
	}
}

func TestEmitAlert_SuppressorFailureDoesNotBlockAlerts(t *testing.T) {
	publisher := &mockAlertPublisher{}
	suppressor := &mockSuppressor{err: errors.New("redis is down")}
	uc := NewEmitAlertUseCase(emitConfig(), publisher, suppressor, nil, stats.New(), logger.New("error"))

	if err := uc.Execute(context.Background(), testVerdict("pump-5"), 0.7); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if publisher.calls != 1 {
		t.Fatalf("expected alert to pass through on suppressor failure")
	}
}
