package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"github.com/kevin07696/payment-reconciler/pkg/timeutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kevin07696/payment-reconciler/internal/services/payment"

// Config holds the settings the payment service needs at runtime
type Config struct {
	// CallbackURL is sent with every capture, cancel and refund so the
	// gateway can report the outcome to the callback endpoint
	CallbackURL string
	ContinueURL string
	CancelURL   string

	// PrivateKey keys the HMAC-SHA256 checksum of inbound callbacks
	PrivateKey string
	TestMode   bool

	BrandingID     string
	Language       string
	PaymentMethods string
	ShopSystem     ports.ShopSystem

	GatewayTimeout  time.Duration
	LockTimeout     time.Duration
	RollbackTimeout time.Duration
	PublishTimeout  time.Duration
	BasketTTL       time.Duration
}

// DefaultConfig returns the timeouts used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Language:        "en",
		ShopSystem:      ports.ShopSystem{Name: "payment-reconciler", Version: "1.0.0"},
		GatewayTimeout:  30 * time.Second,
		LockTimeout:     10 * time.Second,
		RollbackTimeout: 10 * time.Second,
		PublishTimeout:  5 * time.Second,
		BasketTTL:       24 * time.Hour,
	}
}

// Dependencies are the collaborators of the payment service.
// Events and Baskets are optional; Locker and Clock default to in-process implementations.
type Dependencies struct {
	DB         ports.TransactionManager
	Payments   ports.PaymentRepository
	Operations ports.OperationRepository
	Gateway    ports.PaymentGateway
	Locker     ports.PaymentLocker
	Events     ports.EventPublisher
	Baskets    ports.BasketStore
	Clock      ports.Clock
	Logger     ports.Logger
}

// Service reconciles gateway payments with their local operation log
type Service struct {
	db         ports.TransactionManager
	payments   ports.PaymentRepository
	operations ports.OperationRepository
	gateway    ports.PaymentGateway
	locker     ports.PaymentLocker
	events     ports.EventPublisher
	baskets    ports.BasketStore
	clock      ports.Clock
	logger     ports.Logger
	validate   *validator.Validate
	tracer     trace.Tracer
	cfg        Config
}

// NewService creates a new payment service
func NewService(deps Dependencies, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaults.GatewayTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = defaults.RollbackTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.BasketTTL <= 0 {
		cfg.BasketTTL = defaults.BasketTTL
	}

	locker := deps.Locker
	if locker == nil {
		locker = NewKeyedLocker()
	}
	var clock ports.Clock = deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &Service{
		db:         deps.DB,
		payments:   deps.Payments,
		operations: deps.Operations,
		gateway:    deps.Gateway,
		locker:     locker,
		events:     deps.Events,
		baskets:    deps.Baskets,
		clock:      clock,
		logger:     deps.Logger,
		validate:   validator.New(),
		tracer:     otel.Tracer(tracerName),
		cfg:        cfg,
	}
}

// GetPayment returns the stored payment
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, nil, paymentID)
}

// ListOperations returns the operation log of a payment in fold order
func (s *Service) ListOperations(ctx context.Context, paymentID string) ([]*domain.Operation, error) {
	if _, err := s.payments.GetByID(ctx, nil, paymentID); err != nil {
		return nil, err
	}
	return s.operations.ListByPayment(ctx, nil, paymentID)
}

// PaymentDetail is a consistent snapshot of a payment and its log
type PaymentDetail struct {
	Payment    *domain.Payment
	Operations []*domain.Operation
}

// GetPaymentDetail reads the payment and its operations in one read-only transaction
func (s *Service) GetPaymentDetail(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	var detail PaymentDetail
	err := s.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := s.payments.GetByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		ops, err := s.operations.ListByPayment(ctx, tx, paymentID)
		if err != nil {
			return fmt.Errorf("list operations: %w", err)
		}
		detail.Payment = p
		detail.Operations = ops
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// lock acquires the per-payment critical section within the configured timeout
func (s *Service) lock(ctx context.Context, paymentID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	start := time.Now()
	unlock, err := s.locker.Lock(lockCtx, paymentID)
	observability.RecordLockWait(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(domain.ErrorCodeLockTimeout, "timed out waiting for payment lock", err).
			WithDetail("payment_id", paymentID)
	}
	return unlock, nil
}

// mutateFunc changes the log or the payment inside the write transaction
type mutateFunc func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error

// mutate runs fn in a write transaction holding the payment row, re-derives
// status and totals from the full log and persists them.
// The caller must hold the payment lock.
func (s *Service) mutate(ctx context.Context, paymentID string, fn mutateFunc) (*domain.Payment, error) {
	var (
		result   *domain.Payment
		previous domain.Payment
	)

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := s.payments.GetForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		previous = *p

		if err := fn(ctx, tx, p); err != nil {
			return err
		}

		if err := s.rederive(ctx, tx, p); err != nil {
			return err
		}

		p.UpdatedAt = s.clock.Now()
		if err := s.payments.Update(ctx, tx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &previous, result)
	return result, nil
}

// rederive recomputes status and totals from the stored log
func (s *Service) rederive(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	ops, err := s.operations.ListByPayment(ctx, tx, p.ID)
	if err != nil {
		return fmt.Errorf("list operations: %w", err)
	}

	state := DeriveState(p.Amount, ops)
	if len(state.Anomalies) > 0 {
		observability.RecordDerivationAnomaly()
		s.logger.Warn("Derived totals out of expected range",
			ports.String("payment_id", p.ID),
			ports.Any("anomalies", state.Anomalies),
			ports.Int64("amount", p.Amount),
			ports.Int64("amount_authorized", state.AmountAuthorized),
			ports.Int64("amount_captured", state.AmountCaptured),
			ports.Int64("amount_refunded", state.AmountRefunded))
	}

	state.ApplyTo(p)
	return nil
}

// afterCommit records the transition and forwards it to the shop
func (s *Service) afterCommit(ctx context.Context, before, after *domain.Payment) {
	changed := before.Status != after.Status ||
		before.AmountAuthorized != after.AmountAuthorized ||
		before.AmountCaptured != after.AmountCaptured ||
		before.AmountRefunded != after.AmountRefunded ||
		!equalStringPtr(before.OrderNumber, after.OrderNumber)
	if !changed {
		return
	}

	observability.RecordStatusTransition(before.Status.String(), after.Status.String())
	s.logger.Info("Payment state changed",
		ports.String("payment_id", after.ID),
		ports.String("from", before.Status.String()),
		ports.String("to", after.Status.String()),
		ports.Int64("amount_authorized", after.AmountAuthorized),
		ports.Int64("amount_captured", after.AmountCaptured),
		ports.Int64("amount_refunded", after.AmountRefunded))

	if s.events == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()

	event := domain.NewPaymentStatusChanged(after, before.Status, s.clock.Now())
	if err := s.events.PublishStatusChanged(pubCtx, event); err != nil {
		s.logger.Error("Failed to publish payment status event",
			ports.String("payment_id", after.ID),
			ports.String("status", after.Status.String()),
			ports.Err(err))
	}
}

func (s *Service) startSpan(ctx context.Context, name, paymentID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("payment.id", paymentID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "validation failed", err).
			WithDetail("field", verrs[0].Namespace()).
			WithDetail("rule", verrs[0].Tag())
	}
	return domain.WrapError(domain.ErrorCodeValidationFailed, "validation failed", err)
}
