package websocket

import (
	"time"

	"github.com/dreschagin/anomaly-engine/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 25 * time.Second
	pongTimeout  = 60 * time.Second

	// подписчик ничего осмысленного не шлет, входящие кадры нужны
	// только чтобы соединение считалось живым
	inboundLimit = 256
)

// Subscriber — одно WebSocket подключение, получающее поток алертов.
// Подписка односторонняя: hub наполняет outbox, входящие кадры
// отбрасываются.
type Subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	outbox chan Message
	log    *logger.Logger
}

// NewSubscriber оборачивает установленное соединение в подписчика
func NewSubscriber(hub *Hub, conn *websocket.Conn, log *logger.Logger) *Subscriber {
	return &Subscriber{
		hub:    hub,
		conn:   conn,
		outbox: make(chan Message, 64),
		log:    log,
	}
}

// ReadLoop держит соединение живым: продлевает дедлайн по pong и
// отбрасывает входящие кадры. Выход из цикла снимает подписку.
func (s *Subscriber) ReadLoop() {
	defer func() {
		s.hub.Unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(inboundLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}
	}
}

// WriteLoop гонит алерты из outbox в соединение и периодически
// пингует клиента
func (s *Subscriber) WriteLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// hub отключил подписчика
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Warn("websocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
