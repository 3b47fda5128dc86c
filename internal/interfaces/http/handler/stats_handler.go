package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dreschagin/anomaly-engine/internal/application/modelcache"
	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/application/stats"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// StatsHandler отдает срез счетчиков движка
type StatsHandler struct {
	stats    *stats.Stats
	models   *modelcache.Cache
	notifier port.NotificationService
	logger   *logger.Logger
}

// NewStatsHandler создает новый handler
func NewStatsHandler(
	engineStats *stats.Stats,
	models *modelcache.Cache,
	notifier port.NotificationService,
	logger *logger.Logger,
) *StatsHandler {
	return &StatsHandler{
		stats:    engineStats,
		models:   models,
		notifier: notifier,
		logger:   logger,
	}
}

type statsResponse struct {
	stats.Snapshot
	CachedModels     int `json:"cached_models"`
	WebSocketClients int `json:"websocket_clients"`
}

// GetStats возвращает JSON со счетчиками, размером кэша моделей
// и числом подключенных websocket клиентов
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := statsResponse{
		Snapshot: h.stats.Snapshot(),
	}
	if h.models != nil {
		response.CachedModels = h.models.Len()
	}
	if h.notifier != nil {
		response.WebSocketClients = h.notifier.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode stats response", err)
	}
}
