package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/dreschagin/anomaly-engine/internal/application/dto"
	"github.com/dreschagin/anomaly-engine/internal/application/modelcache"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// ErrProcessorStopped возвращается из Submit после остановки процессора
var ErrProcessorStopped = errors.New("stream processor stopped")

// StreamProcessorConfig задает шардирование входного потока
type StreamProcessorConfig struct {
	Shards    int // число воркер-горутин
	QueueSize int // емкость очереди каждого шарда
	Pipeline  ProcessReadingConfig
}

// StreamProcessor раскладывает входные события по шардам и гонит их
// через конвейер. Все события одного монитора попадают в один шард
// (FNV-хеш от monitor id), поэтому обрабатываются строго по одному:
// окна и гистерезис не требуют блокировок, глобального лока на событие нет.
type StreamProcessor struct {
	config  StreamProcessorConfig
	queues  []chan *entity.Reading
	workers []*ProcessReadingUseCase
	emitter *EmitAlertUseCase
	metrics *stats.Stats
	logger  *logger.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	// closeMu разводит продюсеров и Stop: продюсер держит read-сторону
	// на время отправки в очередь, Stop закрывает очереди только под
	// write-стороной, когда отправок в полете нет
	closeMu sync.RWMutex
	closed  bool
}

// NewStreamProcessor создает процессор с воркером на шард
func NewStreamProcessor(
	config StreamProcessorConfig,
	models *modelcache.Cache,
	emitter *EmitAlertUseCase,
	metrics *stats.Stats,
	log *logger.Logger,
) *StreamProcessor {
	if config.Shards < 1 {
		config.Shards = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 64
	}

	queues := make([]chan *entity.Reading, config.Shards)
	workers := make([]*ProcessReadingUseCase, config.Shards)
	for i := range queues {
		queues[i] = make(chan *entity.Reading, config.QueueSize)
		workers[i] = NewProcessReadingUseCase(config.Pipeline, models, metrics, log)
	}

	return &StreamProcessor{
		config:  config,
		queues:  queues,
		workers: workers,
		emitter: emitter,
		metrics: metrics,
		logger:  log,
	}
}

// Start запускает воркер-горутины шардов
func (p *StreamProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := range p.queues {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("stream processor started",
		"shards", p.config.Shards,
		"queue_size", p.config.QueueSize)
}

// Submit разбирает сырое сообщение стрима и ставит его в очередь шарда.
// Блокируется при заполненной очереди — это и есть backpressure на consumer.
func (p *StreamProcessor) Submit(ctx context.Context, data []byte) error {
	readingDTO, err := dto.ParseReading(data)
	if err != nil {
		p.metrics.InvalidReading()
		p.logger.Warn("dropping malformed reading", "error", err.Error())
		return err
	}

	reading, err := readingDTO.ToEntity()
	if err != nil {
		p.metrics.InvalidReading()
		p.logger.Warn("dropping invalid reading",
			"monitor_id", readingDTO.MonitorID, "error", err.Error())
		return err
	}

	return p.SubmitReading(ctx, reading)
}

// SubmitReading ставит готовое событие в очередь шарда его монитора.
// После Stop возвращает ErrProcessorStopped вместо постановки в очередь.
func (p *StreamProcessor) SubmitReading(ctx context.Context, reading *entity.Reading) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrProcessorStopped
	}

	select {
	case p.queues[p.shard(reading.MonitorID())] <- reading:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop закрывает очереди и дожидается, пока воркеры дообработают хвост.
// Очереди закрываются только после того, как активные Submit завершатся,
// а новые начнут получать ErrProcessorStopped.
func (p *StreamProcessor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.closeMu.Lock()
	p.closed = true
	p.closeMu.Unlock()

	for _, queue := range p.queues {
		close(queue)
	}
	p.wg.Wait()
	p.logger.Info("stream processor stopped")
}

// WindowCount возвращает суммарное число открытых окон.
// Показание приблизительное: воркеры не останавливаются на время подсчета.
func (p *StreamProcessor) WindowCount() int {
	total := 0
	for _, worker := range p.workers {
		total += worker.WindowCount()
	}
	return total
}

func (p *StreamProcessor) run(ctx context.Context, shard int) {
	defer p.wg.Done()
	worker := p.workers[shard]

	for reading := range p.queues[shard] {
		verdict, err := worker.Execute(ctx, reading)
		if err != nil {
			// ошибка конвейера относится к одному окну, поток продолжается
			if !errors.Is(err, modelcache.ErrModelUnavailable) {
				p.logger.Warn("pipeline error",
					"shard", shard,
					"monitor_id", reading.MonitorID(),
					"error", err.Error())
			}
			continue
		}
		if verdict == nil || !verdict.IsAnomalous() {
			continue
		}

		if err := p.emitter.Execute(ctx, verdict, worker.Threshold(verdict.MonitorID())); err != nil {
			p.logger.Error("failed to emit alert", err,
				"monitor_id", verdict.MonitorID())
		}
	}
}

func (p *StreamProcessor) shard(monitorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(monitorID))
	return int(h.Sum32() % uint32(len(p.queues)))
}
