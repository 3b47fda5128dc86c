package modelcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// ErrModelUnavailable означает, что модель монитора невозможно получить
// прямо сейчас: ни свежего, ни устаревшего артефакта нет, а источник
// в backoff или отказал. Вызывающий пропускает окно и считает это в метриках.
var ErrModelUnavailable = errors.New("model unavailable")

// Resolution — результат разрешения модели монитора.
// Degraded означает, что возвращен устаревший артефакт: источник
// недоступен, но движок продолжает работать на последней удачной версии.
type Resolution struct {
	Artifact *entity.ModelArtifact
	Degraded bool
}

// Config задает емкость кэша и политику освежения
type Config struct {
	Capacity       int           // максимум мониторов в кэше
	Freshness      time.Duration // срок, после которого артефакт освежается
	BackoffBase    time.Duration // пауза после первой неудачи
	BackoffCeiling time.Duration // потолок экспоненциального backoff
	LoadTimeout    time.Duration // бюджет на загрузку из хранилища
	BuildTimeout   time.Duration // бюджет на построение модели
}

// entry — слот одного монитора. Мьютекс слота сериализует загрузку
// и построение: конкурентные Resolve одного монитора выстраиваются
// на нем в очередь, и работу выполняет только первый (coalescing).
type entry struct {
	mu sync.Mutex

	// поля ниже защищены entry.mu
	artifact    *entity.ModelArtifact
	refreshedAt time.Time
	failures    int
	lastAttempt time.Time
}

// Cache — LRU-кэш моделей по мониторам с per-entry сериализацией.
// Общая блокировка защищает только индекс и порядок вытеснения;
// загрузка и построение идут под мьютексом слота, поэтому медленный
// монитор не тормозит остальных.
type Cache struct {
	mu      sync.Mutex // защищает index, order и pins
	index   map[string]*list.Element
	order   *list.List // front — самый свежий по использованию
	pins    map[string]int
	store   port.ArtifactStore
	builder port.ModelBuilder

	// registry опционален: при nil записи об обучениях не ведутся
	registry port.ModelRegistry

	config  Config
	metrics *stats.Stats
	log     *logger.Logger
	now     func() time.Time
}

type lruItem struct {
	monitorID string
	slot      *entry
}

// New создает кэш моделей
func New(
	store port.ArtifactStore,
	builder port.ModelBuilder,
	registry port.ModelRegistry,
	config Config,
	metrics *stats.Stats,
	log *logger.Logger,
) *Cache {
	if config.Capacity < 1 {
		config.Capacity = 1
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 5 * time.Second
	}
	if config.BackoffCeiling < config.BackoffBase {
		config.BackoffCeiling = config.BackoffBase
	}
	return &Cache{
		index:    make(map[string]*list.Element),
		order:    list.New(),
		pins:     make(map[string]int),
		store:    store,
		builder:  builder,
		registry: registry,
		config:   config,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// Resolve возвращает пригодную модель монитора.
//
// Порядок попыток: свежий артефакт из кэша; загрузка из хранилища;
// построение по истории; устаревший артефакт как деградация. Неудачи
// запоминаются на слоте, повторная попытка — не раньше backoff-интервала.
func (c *Cache) Resolve(ctx context.Context, monitorID string) (Resolution, error) {
	slot := c.acquire(monitorID)
	defer c.release(monitorID)

	// Точка коалесинга: конкуренты того же монитора ждут здесь,
	// а после пробуждения видят уже освеженный слот.
	slot.mu.Lock()
	defer slot.mu.Unlock()

	now := c.now()

	if slot.artifact != nil && now.Sub(slot.refreshedAt) < c.config.Freshness {
		if c.metrics != nil {
			c.metrics.CacheHit()
		}
		return Resolution{Artifact: slot.artifact}, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMiss()
	}

	if slot.failures > 0 && now.Sub(slot.lastAttempt) < c.backoff(slot.failures) {
		return c.degradeOrFail(slot, monitorID,
			fmt.Errorf("%w: monitor %s is backing off after %d failures",
				ErrModelUnavailable, monitorID, slot.failures))
	}

	artifact, err := c.refresh(ctx, monitorID)
	if err != nil {
		slot.failures++
		slot.lastAttempt = now
		if c.metrics != nil {
			c.metrics.CacheRefreshFail()
		}
		c.log.Warn("model refresh failed",
			"monitor_id", monitorID,
			"failures", slot.failures,
			"error", err.Error())
		return c.degradeOrFail(slot, monitorID,
			fmt.Errorf("%w: monitor %s: %v", ErrModelUnavailable, monitorID, err))
	}

	slot.artifact = artifact
	slot.refreshedAt = now
	slot.failures = 0
	return Resolution{Artifact: artifact}, nil
}

// Invalidate сбрасывает слот монитора; следующий Resolve пойдет в хранилище
func (c *Cache) Invalidate(monitorID string) {
	c.mu.Lock()
	element, ok := c.index[monitorID]
	c.mu.Unlock()
	if !ok {
		return
	}

	slot := element.Value.(*lruItem).slot
	slot.mu.Lock()
	slot.artifact = nil
	slot.refreshedAt = time.Time{}
	slot.failures = 0
	slot.lastAttempt = time.Time{}
	slot.mu.Unlock()
}

// Len возвращает число мониторов в кэше
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// acquire находит или создает слот монитора, двигает его в голову LRU
// и закрепляет от вытеснения на время Resolve
func (c *Cache) acquire(monitorID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.index[monitorID]; ok {
		c.order.MoveToFront(element)
		c.pins[monitorID]++
		return element.Value.(*lruItem).slot
	}

	slot := &entry{}
	c.index[monitorID] = c.order.PushFront(&lruItem{monitorID: monitorID, slot: slot})
	c.pins[monitorID]++
	c.evictLocked()
	return slot
}

func (c *Cache) release(monitorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pins[monitorID]--
	if c.pins[monitorID] <= 0 {
		delete(c.pins, monitorID)
	}
	c.evictLocked()
}

// evictLocked вытесняет наименее используемые незакрепленные слоты.
// Закрепленный слот пропускается: кэш может временно превысить емкость,
// лишнее уйдет при ближайшем release.
func (c *Cache) evictLocked() {
	for c.order.Len() > c.config.Capacity {
		victim := c.oldestUnpinned()
		if victim == nil {
			return
		}
		item := victim.Value.(*lruItem)
		c.order.Remove(victim)
		delete(c.index, item.monitorID)
		if c.metrics != nil {
			c.metrics.CacheEviction()
		}
		c.log.Debug("model evicted from cache", "monitor_id", item.monitorID)
	}
}

func (c *Cache) oldestUnpinned() *list.Element {
	for element := c.order.Back(); element != nil; element = element.Prev() {
		if c.pins[element.Value.(*lruItem).monitorID] == 0 {
			return element
		}
	}
	return nil
}

// refresh загружает артефакт из хранилища; при его отсутствии,
// непригодности или отказе хранилища — строит новый по истории.
// Недоступное хранилище не приговор: модель монитора с историей
// можно обучить и без него.
func (c *Cache) refresh(ctx context.Context, monitorID string) (*entity.ModelArtifact, error) {
	loadCtx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	artifact, err := c.store.Get(loadCtx, monitorID)
	cancel()

	var loadErr error
	switch {
	case err == nil && artifact.UsableFor(monitorID):
		return artifact, nil
	case err == nil:
		// сохраненный артефакт непригоден (invalid или чужой) — перестраиваем
		c.log.Warn("stored artifact is unusable, rebuilding",
			"monitor_id", monitorID, "version", artifact.Version())
	case errors.Is(err, port.ErrArtifactNotFound):
		// первый раз видим монитор — обучаем с нуля
	default:
		loadErr = err
		c.log.Warn("artifact load failed, building from history",
			"monitor_id", monitorID, "error", err.Error())
	}

	built, err := c.build(ctx, monitorID)
	if err != nil {
		if loadErr != nil {
			return nil, fmt.Errorf("load artifact: %v; %w", loadErr, err)
		}
		return nil, err
	}
	return built, nil
}

func (c *Cache) build(ctx context.Context, monitorID string) (*entity.ModelArtifact, error) {
	buildCtx, cancel := context.WithTimeout(ctx, c.config.BuildTimeout)
	defer cancel()

	artifact, err := c.builder.Build(buildCtx, monitorID)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	if c.metrics != nil {
		c.metrics.CacheBuild()
	}

	if err := c.store.Put(buildCtx, artifact); err != nil {
		// модель уже в памяти и пригодна, потеря персистентности не фатальна
		c.log.Warn("failed to persist built artifact",
			"monitor_id", monitorID, "error", err.Error())
	}

	if c.registry != nil {
		record := port.ModelRecord{
			MonitorID:    artifact.MonitorID(),
			Version:      artifact.Version(),
			TrainedAt:    artifact.TrainedAt(),
			FeatureNames: artifact.FeatureNames(),
			StorageKey:   artifact.MonitorID(),
		}
		if err := c.registry.PutRecord(buildCtx, record); err != nil {
			c.log.Warn("failed to register built model",
				"monitor_id", monitorID, "error", err.Error())
		}
	}

	c.log.Info("model built",
		"monitor_id", monitorID,
		"version", artifact.Version(),
		"features", artifact.FeatureCount())
	return artifact, nil
}

// degradeOrFail возвращает устаревший артефакт как деградацию,
// либо итоговую ошибку, если возвращать нечего
func (c *Cache) degradeOrFail(slot *entry, monitorID string, cause error) (Resolution, error) {
	if slot.artifact != nil && slot.artifact.UsableFor(monitorID) {
		return Resolution{Artifact: slot.artifact, Degraded: true}, nil
	}
	return Resolution{}, cause
}

// backoff возвращает паузу перед повторной попыткой: base * 2^(failures-1),
// не выше потолка
func (c *Cache) backoff(failures int) time.Duration {
	delay := c.config.BackoffBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= c.config.BackoffCeiling {
			return c.config.BackoffCeiling
		}
	}
	if delay > c.config.BackoffCeiling {
		return c.config.BackoffCeiling
	}
	return delay
}
