package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/alfredjeanlab/workq/internal/metrics"
)

// NATSPublisher publishes JSON-encoded events to NATS subjects named
// after their topic. The caller's trace context travels in the message
// headers.
type NATSPublisher struct {
	conn       *nats.Conn
	propagator propagation.TextMapPropagator
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("workq-publisher"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats publisher disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats publisher reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, propagator: otel.GetTextMapPropagator()}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	p.propagator.Inject(ctx, propagation.HeaderCarrier(msg.Header))
	if err := p.conn.PublishMsg(msg); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()
	return nil
}

// Close flushes buffered events and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
