package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

type mockArtifactStore struct {
	mu        sync.Mutex
	artifacts map[string]*entity.ModelArtifact
	getErr    error
	getDelay  time.Duration
	getCalls  int32
	putCalls  int32
}

func (m *mockArtifactStore) Get(_ context.Context, monitorID string) (*entity.ModelArtifact, error) {
	atomic.AddInt32(&m.getCalls, 1)
	if m.getDelay > 0 {
		time.Sleep(m.getDelay)
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[monitorID]
	if !ok {
		return nil, port.ErrArtifactNotFound
	}
	return artifact, nil
}

func (m *mockArtifactStore) Put(_ context.Context, artifact *entity.ModelArtifact) error {
	atomic.AddInt32(&m.putCalls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.artifacts == nil {
		m.artifacts = make(map[string]*entity.ModelArtifact)
	}
	m.artifacts[artifact.MonitorID()] = artifact
	return nil
}

func (m *mockArtifactStore) Exists(_ context.Context, monitorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.artifacts[monitorID]
	return ok, nil
}

type mockModelBuilder struct {
	err        error
	buildCalls int32
}

func (m *mockModelBuilder) Build(_ context.Context, monitorID string) (*entity.ModelArtifact, error) {
	atomic.AddInt32(&m.buildCalls, 1)
	if m.err != nil {
		return nil, m.err
	}
	return testArtifact(monitorID, "built-v1"), nil
}

type mockModelRegistry struct {
	mu      sync.Mutex
	records []port.ModelRecord
}

func (m *mockModelRegistry) PutRecord(_ context.Context, record port.ModelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockModelRegistry) ListByMonitor(_ context.Context, _ port.ModelListQuery) (port.ModelListPage, error) {
	return port.ModelListPage{}, nil
}

func testArtifact(monitorID, version string) *entity.ModelArtifact {
	artifact, err := entity.NewModelArtifact(
		monitorID,
		version,
		time.Now(),
		true,
		[]string{"moisture", "oil_temperature"},
		[]float64{0.03, 60.0},
		[]float64{0.01, 5.0},
		2.0,
	)
	if err != nil {
		panic(err)
	}
	return artifact
}

func testConfig() Config {
	return Config{
		Capacity:       4,
		Freshness:      time.Minute,
		BackoffBase:    5 * time.Second,
		BackoffCeiling: time.Minute,
		LoadTimeout:    time.Second,
		BuildTimeout:   time.Second,
	}
}

func TestCache_ResolveLoadsOnceWhileFresh(t *testing.T) {
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{
			"pump-1": testArtifact("pump-1", "v1"),
		},
	}
	builder := &mockModelBuilder{}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	for i := 0; i < 5; i++ {
		res, err := cache.Resolve(context.Background(), "pump-1")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Degraded {
			t.Fatalf("expected fresh resolution, got degraded")
		}
		if res.Artifact.Version() != "v1" {
			t.Fatalf("unexpected version: %s", res.Artifact.Version())
		}
	}

	if calls := atomic.LoadInt32(&store.getCalls); calls != 1 {
		t.Fatalf("expected 1 store load, got %d", calls)
	}
	if calls := atomic.LoadInt32(&builder.buildCalls); calls != 0 {
		t.Fatalf("expected no builds, got %d", calls)
	}
}

func TestCache_ResolveBuildsWhenArtifactMissing(t *testing.T) {
	store := &mockArtifactStore{}
	builder := &mockModelBuilder{}
	registry := &mockModelRegistry{}
	cache := New(store, builder, registry, testConfig(), stats.New(), logger.New("error"))

	res, err := cache.Resolve(context.Background(), "pump-2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Artifact.Version() != "built-v1" {
		t.Fatalf("expected built artifact, got %s", res.Artifact.Version())
	}
	if calls := atomic.LoadInt32(&builder.buildCalls); calls != 1 {
		t.Fatalf("expected 1 build, got %d", calls)
	}
	if calls := atomic.LoadInt32(&store.putCalls); calls != 1 {
		t.Fatalf("expected built artifact to be persisted")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if len(registry.records) != 1 || registry.records[0].MonitorID != "pump-2" {
		t.Fatalf("expected registry record for pump-2, got %+v", registry.records)
	}
}

func TestCache_ConcurrentResolveCoalesces(t *testing.T) {
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{
			"pump-3": testArtifact("pump-3", "v1"),
		},
		getDelay: 50 * time.Millisecond,
	}
	cache := New(store, &mockModelBuilder{}, nil, testConfig(), stats.New(), logger.New("error"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Resolve(context.Background(), "pump-3"); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&store.getCalls); calls != 1 {
		t.Fatalf("expected coalesced single load, got %d", calls)
	}
}

func TestCache_DegradedOnRefreshFailure(t *testing.T) {
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{
			"pump-4": testArtifact("pump-4", "v1"),
		},
	}
	builder := &mockModelBuilder{}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	if _, err := cache.Resolve(context.Background(), "pump-4"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// артефакт устарел, хранилище отказало и переобучиться не по чему
	now := time.Now().Add(2 * time.Minute)
	cache.now = func() time.Time { return now }
	store.getErr = errors.New("s3 is down")
	builder.err = errors.New("no history")

	res, err := cache.Resolve(context.Background(), "pump-4")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected degraded resolution")
	}
	if res.Artifact.Version() != "v1" {
		t.Fatalf("expected stale v1 artifact, got %s", res.Artifact.Version())
	}
}

func TestCache_UnavailableWhenNothingToServe(t *testing.T) {
	store := &mockArtifactStore{getErr: errors.New("s3 is down")}
	builder := &mockModelBuilder{err: errors.New("no history")}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	_, err := cache.Resolve(context.Background(), "pump-5")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestCache_BuildsWhenStoreErrors(t *testing.T) {
	// отказ хранилища — не то же самое, что отсутствие артефакта:
	// модель все равно строится по истории
	store := &mockArtifactStore{getErr: errors.New("s3: connection reset")}
	builder := &mockModelBuilder{}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	res, err := cache.Resolve(context.Background(), "pump-5")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Degraded {
		t.Fatalf("expected fresh built artifact, got degraded")
	}
	if res.Artifact.Version() != "built-v1" {
		t.Fatalf("expected built artifact, got %s", res.Artifact.Version())
	}
	if calls := atomic.LoadInt32(&builder.buildCalls); calls != 1 {
		t.Fatalf("expected 1 build, got %d", calls)
	}
}

func TestCache_BackoffSuppressesRetries(t *testing.T) {
	store := &mockArtifactStore{getErr: errors.New("s3 is down")}
	builder := &mockModelBuilder{err: errors.New("no history")}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	base := time.Now()
	cache.now = func() time.Time { return base }

	if _, err := cache.Resolve(context.Background(), "pump-6"); err == nil {
		t.Fatalf("expected failure")
	}

	// внутри backoff-интервала повторная попытка не делается
	cache.now = func() time.Time { return base.Add(time.Second) }
	if _, err := cache.Resolve(context.Background(), "pump-6"); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if calls := atomic.LoadInt32(&store.getCalls); calls != 1 {
		t.Fatalf("expected no retry during backoff, got %d loads", calls)
	}

	// после истечения backoff попытка повторяется
	cache.now = func() time.Time { return base.Add(10 * time.Second) }
	if _, err := cache.Resolve(context.Background(), "pump-6"); err == nil {
		t.Fatalf("expected failure")
	}
	if calls := atomic.LoadInt32(&store.getCalls); calls != 2 {
		t.Fatalf("expected retry after backoff, got %d loads", calls)
	}
}

func TestCache_BackoffGrowsExponentiallyToCeiling(t *testing.T) {
	cache := New(&mockArtifactStore{}, &mockModelBuilder{}, nil, Config{
		Capacity:       1,
		Freshness:      time.Minute,
		BackoffBase:    5 * time.Second,
		BackoffCeiling: time.Minute,
	}, nil, logger.New("error"))

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, time.Minute},
		{10, time.Minute},
	}
	for _, tc := range cases {
		if got := cache.backoff(tc.failures); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{
			"pump-a": testArtifact("pump-a", "v1"),
			"pump-b": testArtifact("pump-b", "v1"),
			"pump-c": testArtifact("pump-c", "v1"),
		},
	}
	config := testConfig()
	config.Capacity = 2
	engineStats := stats.New()
	cache := New(store, &mockModelBuilder{}, nil, config, engineStats, logger.New("error"))

	for _, id := range []string{"pump-a", "pump-b", "pump-c"} {
		if _, err := cache.Resolve(context.Background(), id); err != nil {
			t.Fatalf("Resolve(%s) error = %v", id, err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("expected cache size 2, got %d", cache.Len())
	}
	if engineStats.Snapshot().CacheEvictions != 1 {
		t.Fatalf("expected 1 eviction")
	}

	// pump-a был вытеснен как самый давний — его Resolve снова идет в хранилище
	before := atomic.LoadInt32(&store.getCalls)
	if _, err := cache.Resolve(context.Background(), "pump-a"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if atomic.LoadInt32(&store.getCalls) != before+1 {
		t.Fatalf("expected reload of evicted monitor")
	}
}

func TestCache_InvalidateForcesReload(t *testing.T) {
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{
			"pump-7": testArtifact("pump-7", "v1"),
		},
	}
	cache := New(store, &mockModelBuilder{}, nil, testConfig(), stats.New(), logger.New("error"))

	if _, err := cache.Resolve(context.Background(), "pump-7"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	store.mu.Lock()
	store.artifacts["pump-7"] = testArtifact("pump-7", "v2")
	store.mu.Unlock()
	cache.Invalidate("pump-7")

	res, err := cache.Resolve(context.Background(), "pump-7")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Artifact.Version() != "v2" {
		t.Fatalf("expected v2 after invalidate, got %s", res.Artifact.Version())
	}
}

func TestCache_RebuildsUnusableStoredArtifact(t *testing.T) {
	invalid, err := entity.NewModelArtifact(
		"pump-8", "v0", time.Now(), false,
		[]string{"moisture"}, []float64{0.03}, []float64{0.01}, 2.0,
	)
	if err != nil {
		t.Fatalf("NewModelArtifact() error = %v", err)
	}
	store := &mockArtifactStore{
		artifacts: map[string]*entity.ModelArtifact{"pump-8": invalid},
	}
	builder := &mockModelBuilder{}
	cache := New(store, builder, nil, testConfig(), stats.New(), logger.New("error"))

	res, err := cache.Resolve(context.Background(), "pump-8")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Artifact.Version() != "built-v1" {
		t.Fatalf("expected rebuilt artifact, got %s", res.Artifact.Version())
	}
	if calls := atomic.LoadInt32(&builder.buildCalls); calls != 1 {
		t.Fatalf("expected 1 build, got %d", calls)
	}
}
