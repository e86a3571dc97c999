package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string
	Name          string
	Stream        string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
}

// NATSPublisher publishes status changes to a JetStream stream.
// The message id makes redelivered publishes idempotent within the
// stream's duplicate window.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *zap.Logger
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS and ensures the payments stream exists
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.SubjectPrefix + ".>"},
		MaxAge:     maxAge,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating/updating stream %s: %w", cfg.Stream, err)
	}

	logger.Info("NATS connection established",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("stream", cfg.Stream))

	return &NATSPublisher{conn: conn, js: js, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// PublishStatusChanged implements ports.EventPublisher
func (p *NATSPublisher) PublishStatusChanged(ctx context.Context, event domain.PaymentStatusChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := StatusChangedSubject(p.prefix, event.PaymentID)
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(eventID(event)))
	if err != nil {
		observability.RecordEventPublished("nats", "failed")
		return fmt.Errorf("publishing event: %w", err)
	}
	observability.RecordEventPublished("nats", "success")

	p.logger.Debug("Payment event published",
		zap.String("subject", subject),
		zap.String("payment_id", event.PaymentID),
		zap.String("status", event.Status))

	return nil
}

// HealthCheck checks NATS connection health
func (p *NATSPublisher) HealthCheck(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return nil
}

// Close drains pending publishes and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// StatusChangedSubject is the subject a payment's status events go to
func StatusChangedSubject(prefix, paymentID string) string {
	return prefix + "." + EventTypeStatusChanged + "." + paymentID
}

// eventID identifies one committed change of a payment
func eventID(event domain.PaymentStatusChanged) string {
	return event.PaymentID + "-" + event.Status + "-" + strconv.FormatInt(event.OccurredAt.UnixMicro(), 10)
}
