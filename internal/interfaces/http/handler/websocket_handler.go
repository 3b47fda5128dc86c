package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsInfra "github.com/dreschagin/anomaly-engine/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/anomaly-engine/internal/interfaces/http/middleware"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// WebSocketHandler апгрейдит HTTP соединение и подключает его к потоку
// алертов. Авторизация проверяется до апгрейда, Origin — в момент
// рукопожатия.
type WebSocketHandler struct {
	hub      *wsInfra.Hub
	origins  map[string]struct{}
	auth     middleware.AuthConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWebSocketHandler создает handler подписки на алерты
func NewWebSocketHandler(
	hub *wsInfra.Hub,
	allowedOrigins []string,
	auth middleware.AuthConfig,
	log *logger.Logger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		origins: make(map[string]struct{}),
		auth:    auth,
		logger:  log,
	}
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.origins[origin] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.originAllowed(r.Header.Get("Origin"))
		},
	}
	return h
}

// originAllowed сверяет Origin браузера со списком разрешенных.
// Пустой Origin пропускается: его не шлют небраузерные клиенты
// (curl, сервисы), а им CSWSH не грозит.
func (h *WebSocketHandler) originAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if len(h.origins) == 0 {
		return false
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	_, ok := h.origins[parsed.Scheme+"://"+parsed.Host]
	return ok
}

// HandleConnection принимает новую подписку на поток алертов
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := middleware.ValidateRequestAuth(r, h.auth); err != nil {
		h.logger.Warn("websocket subscription rejected",
			"remote_addr", r.RemoteAddr, "error", err.Error())
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту подходящим статусом
		h.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr, "error", err.Error())
		return
	}

	sub := wsInfra.NewSubscriber(h.hub, conn, h.logger)
	h.hub.Register(sub)
	h.logger.Info("alert subscriber connected", "remote_addr", r.RemoteAddr)

	go sub.WriteLoop()
	go sub.ReadLoop()
}
