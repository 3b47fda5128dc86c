package port

import (
	"context"
)

// AlertPublisher defines the interface for publishing alerts to a message broker
type AlertPublisher interface {
	// PublishAlert publishes an alert to the specified subject
	PublishAlert(ctx context.Context, subject string, alert interface{}) error

	// Close closes the connection to the message broker
	Close() error
}
