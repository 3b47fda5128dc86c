package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/anomaly-engine/pkg/logger"
	"github.com/nats-io/nats.go"
)

// AlertPublisher implements port.AlertPublisher for NATS JetStream
type AlertPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// NewAlertPublisher creates a new NATS alert publisher
func NewAlertPublisher(natsURL string, log *logger.Logger) (*AlertPublisher, error) {
	// Connect to NATS with retry
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

	log.Info("Connected to NATS", "url", natsURL)

	return &AlertPublisher{
		nc:     nc,
		js:     js,
		logger: log,
	}, nil
}

// PublishAlert publishes an alert to NATS.
// Synchronous publish: the emitter retries on failure, so the broker
// must acknowledge before we report success.
func (p *AlertPublisher) PublishAlert(ctx context.Context, subject string, alert interface{}) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish alert", err, "subject", subject)
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Debug("Alert published", "subject", subject, "size", len(data))
	return nil
}

// Close closes the NATS connection
func (p *AlertPublisher) Close() error {
	if p.nc != nil {
		p.logger.Info("Closing NATS connection")
		p.nc.Close()
	}
	return nil
}
