package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/anomaly-engine/pkg/logger"
	"github.com/nats-io/nats.go"
)

// ReadingHandler обрабатывает одно сырое сообщение входного стрима.
// Ошибка означает, что сообщение отброшено; consumer его не переигрывает.
type ReadingHandler func(ctx context.Context, data []byte) error

// ReadingConsumer подписывается на входной стрим телеметрии.
// Queue group дает горизонтальное масштабирование: экземпляры движка
// делят мониторы между собой без дублирования событий.
type ReadingConsumer struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
	queue   string
	logger  *logger.Logger
}

// NewReadingConsumer creates a consumer for the input telemetry stream
func NewReadingConsumer(natsURL, subject, queue string, log *logger.Logger) (*ReadingConsumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &ReadingConsumer{
		nc:      nc,
		js:      js,
		subject: subject,
		queue:   queue,
		logger:  log,
	}, nil
}

// Start подписывается и обрабатывает сообщения до отмены контекста.
// Ack отправляется после обработки: при падении движка необработанный
// хвост будет доставлен повторно.
func (c *ReadingConsumer) Start(ctx context.Context, handler ReadingHandler) error {
	sub, err := c.js.QueueSubscribe(c.subject, c.queue, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			// невалидное сообщение переигрывать бессмысленно
			c.logger.Debug("reading rejected", "subject", c.subject, "error", err.Error())
		}
		if err := msg.Ack(); err != nil {
			c.logger.Warn("failed to ack message", "error", err.Error())
		}
	}, nats.ManualAck(), nats.AckWait(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub

	c.logger.Info("Consuming telemetry stream",
		"subject", c.subject,
		"queue", c.queue)
	return nil
}

// Close drains the subscription and closes the connection
func (c *ReadingConsumer) Close() error {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn("failed to drain subscription", "error", err.Error())
		}
	}
	if c.nc != nil {
		c.logger.Info("Closing NATS consumer connection")
		c.nc.Close()
	}
	return nil
}
