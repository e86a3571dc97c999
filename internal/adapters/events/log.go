package events

import (
	"context"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"go.uber.org/zap"
)

// EventTypeStatusChanged names the status-change event on every broker
const EventTypeStatusChanged = "status_changed"

// Broker backends
const (
	BrokerNone  = "none"
	BrokerLog   = "log"
	BrokerNATS  = "nats"
	BrokerKafka = "kafka"
)

// LogPublisher writes status changes to the log. It is used when no
// broker is configured so that changes remain visible.
type LogPublisher struct {
	logger *zap.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishStatusChanged implements ports.EventPublisher
func (p *LogPublisher) PublishStatusChanged(ctx context.Context, event domain.PaymentStatusChanged) error {
	fields := []zap.Field{
		zap.String("payment_id", event.PaymentID),
		zap.String("order_id", event.OrderID),
		zap.String("previous_status", event.PreviousStatus),
		zap.String("status", event.Status),
		zap.String("order_payment_state", string(event.OrderPaymentState)),
		zap.Int64("amount_authorized", event.AmountAuthorized),
		zap.Int64("amount_captured", event.AmountCaptured),
		zap.Int64("amount_refunded", event.AmountRefunded),
	}
	if event.OrderNumber != nil {
		fields = append(fields, zap.String("order_number", *event.OrderNumber))
	}

	p.logger.Info("Payment status changed", fields...)
	observability.RecordEventPublished("log", "success")
	return nil
}

// Close implements ports.EventPublisher
func (p *LogPublisher) Close() error {
	return nil
}
