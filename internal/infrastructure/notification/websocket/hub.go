package websocket

import (
	"sync"

	"github.com/dreschagin/anomaly-engine/internal/application/dto"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// Hub ведет учет подписчиков и рассылает им алерты.
// Реализует интерфейс port.NotificationService.
// Рассылка не блокирует конвейер: переполненный outbox означает
// потерю алерта для медленного подписчика, не задержку скоринга.
type Hub struct {
	subscribers map[*Subscriber]struct{}
	broadcast   chan *dto.AlertDTO
	register    chan *Subscriber
	unregister  chan *Subscriber
	mu          sync.RWMutex
	logger      *logger.Logger
}

// NewHub создает hub рассылки алертов
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		broadcast:   make(chan *dto.AlertDTO, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		logger:      logger,
	}
}

// Run обслуживает подписки и рассылку; запускается в отдельной горутине
func (h *Hub) Run() {
	h.logger.Info("alert hub started")

	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("subscriber joined", "total", h.ClientCount())

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.outbox)
			}
			h.mu.Unlock()
			h.logger.Debug("subscriber left", "total", h.ClientCount())

		case alert := <-h.broadcast:
			h.mu.Lock()
			for sub := range h.subscribers {
				select {
				case sub.outbox <- Message{Type: "alert", Data: alert}:
				default:
					// подписчик не успевает читать — отключаем
					delete(h.subscribers, sub)
					close(sub.outbox)
					h.logger.Warn("slow subscriber dropped")
				}
			}
			h.mu.Unlock()
			h.logger.Debug("alert fanned out", "monitor_id", alert.MonitorID)
		}
	}
}

// Register подключает подписчика к рассылке
func (h *Hub) Register(sub *Subscriber) {
	h.register <- sub
}

// Unregister снимает подписку
func (h *Hub) Unregister(sub *Subscriber) {
	h.unregister <- sub
}

// BroadcastAlert ставит алерт в очередь рассылки (реализация port.NotificationService)
func (h *Hub) BroadcastAlert(alert *dto.AlertDTO) {
	select {
	case h.broadcast <- alert:
	default:
		h.logger.Warn("broadcast queue full, dropping alert")
	}
}

// ClientCount возвращает число активных подписчиков (реализация port.NotificationService)
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Message — кадр, уходящий подписчику
type Message struct {
	Type string      `json:"type"` // пока только "alert"
	Data interface{} `json:"data"`
}
