package natspub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"airtable-sync/internal/models"
)

// Publisher delivers change batches to NATS, one subject per base. It
// is the boundary to the topic bridge: subscribers of a base listen on
// that base's subject, delivery is at least once.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *logrus.Logger
}

// New connects to NATS with reconnect handling.
func New(url, prefix string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnect),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", url)

	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Publish delivers one change batch to the base's subject.
func (p *Publisher) Publish(baseID string, batch *models.ChangeBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.changed", p.prefix, baseID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	p.logger.Debugf("Published batch %d for base %s (%d changes)", batch.Number, baseID, len(batch.Changes))
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
