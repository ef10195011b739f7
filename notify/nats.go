// Package notify publishes operational status events to NATS for
// consumption by dashboards and websocket broadcasters.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	datahub "github.com/transitdata/datahub"
)

const DefaultSubject = "datahub.status"

// NATSNotifier publishes status summaries to a NATS subject. It
// implements datahub.Notifier.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSNotifier(url string, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("datahub"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

func (n *NATSNotifier) Publish(summary datahub.StatusSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding status summary: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing status summary: %w", err)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (n *NATSNotifier) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
