package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
)

// Reconciliation sources for metrics and logs
const (
	SourceCallback = "callback"
	SourceSync     = "sync"
)

// MergeResult counts what a reconciliation changed in the log
type MergeResult struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// ParseNotification decodes a callback body and keeps the raw bytes.
// Decoding failures are reconciliation errors.
func ParseNotification(body []byte) (*domain.Notification, error) {
	n, err := domain.DecodeNotification(body)
	if err != nil {
		return nil, domain.NewReconciliationError("invalid notification body", err)
	}
	return n, nil
}

// validateNotification rejects the whole notification before anything is applied
func (s *Service) validateNotification(paymentID string, n *domain.Notification) error {
	if n == nil {
		return domain.NewReconciliationError("empty notification", nil)
	}
	if err := s.validate.Struct(n); err != nil {
		return domain.NewReconciliationError("invalid notification", err)
	}
	if n.PaymentID() != paymentID {
		return domain.NewReconciliationError(
			fmt.Sprintf("notification for payment %s applied to %s", n.PaymentID(), paymentID), nil)
	}
	return nil
}

// Reconcile merges the notification's operations into the payment's log by
// remote operation id and re-derives status and totals. Matched records are
// updated in place, unseen ones are inserted. Applying the same notification
// twice leaves the log and the derived state unchanged.
func (s *Service) Reconcile(ctx context.Context, paymentID string, n *domain.Notification) (*domain.Payment, error) {
	return s.reconcile(ctx, SourceCallback, paymentID, n)
}

func (s *Service) reconcile(ctx context.Context, source, paymentID string, n *domain.Notification) (p *domain.Payment, err error) {
	ctx, span := s.startSpan(ctx, "payment.Reconcile", paymentID)
	defer func() { endSpan(span, err) }()

	if err := s.validateNotification(paymentID, n); err != nil {
		observability.RecordReconciliation(source, "rejected", 0, 0)
		s.logger.Warn("Dropping malformed notification",
			ports.String("payment_id", paymentID),
			ports.String("source", source),
			ports.Err(err))
		return nil, err
	}

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result MergeResult
	p, err = s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		r, err := s.merge(ctx, tx, p.ID, n.Operations)
		result = r
		return err
	})
	if err != nil {
		observability.RecordReconciliation(source, "failed", 0, 0)
		s.logger.Error("Reconciliation failed",
			ports.String("payment_id", paymentID),
			ports.String("source", source),
			ports.Err(err))
		return nil, err
	}

	observability.RecordReconciliation(source, "applied", result.Inserted, result.Updated)
	s.logger.Info("Notification reconciled",
		ports.String("payment_id", paymentID),
		ports.String("source", source),
		ports.Int("inserted", result.Inserted),
		ports.Int("updated", result.Updated),
		ports.Int("unchanged", result.Unchanged),
		ports.String("status", p.Status.String()))

	return p, nil
}

// merge applies remote operations to the stored log
func (s *Service) merge(ctx context.Context, tx pgx.Tx, paymentID string, remotes []domain.RemoteOperation) (MergeResult, error) {
	var result MergeResult

	existing, err := s.operations.ListByPayment(ctx, tx, paymentID)
	if err != nil {
		return result, fmt.Errorf("list operations: %w", err)
	}
	index := domain.IndexByRemoteID(existing)

	// Last entry wins when a notification repeats a remote id
	latest := make(map[string]domain.RemoteOperation, len(remotes))
	for _, remote := range remotes {
		latest[remote.RemoteID()] = remote
	}

	var unseen []domain.RemoteOperation
	for id, remote := range latest {
		op, ok := index[id]
		if !ok {
			unseen = append(unseen, remote)
			continue
		}

		payload, err := remote.Payload()
		if err != nil {
			return result, fmt.Errorf("marshal operation %s: %w", id, err)
		}

		before := op.Clone()
		op.ApplyRemote(remote, payload)
		if sameOperation(before, op) {
			result.Unchanged++
			continue
		}
		if err := s.operations.Update(ctx, tx, op); err != nil {
			return result, fmt.Errorf("update operation %s: %w", id, err)
		}
		result.Updated++
	}

	// Unseen operations are inserted in gateway order so that the resulting
	// log does not depend on their position in the notification
	domain.SortRemoteOperations(unseen)
	for _, remote := range unseen {
		payload, err := remote.Payload()
		if err != nil {
			return result, fmt.Errorf("marshal operation %s: %w", remote.RemoteID(), err)
		}

		remoteID := remote.RemoteID()
		op := &domain.Operation{
			PaymentID:   paymentID,
			OperationID: &remoteID,
			CreatedAt:   s.clock.Now(),
		}
		op.ApplyRemote(remote, payload)

		if err := s.operations.Append(ctx, tx, op); err != nil {
			return result, fmt.Errorf("append operation %s: %w", remoteID, err)
		}
		result.Inserted++
	}

	return result, nil
}

func sameOperation(a, b *domain.Operation) bool {
	if a.Type != b.Type || a.Amount != b.Amount || a.Outcome != b.Outcome || a.StatusCode != b.StatusCode {
		return false
	}
	if (a.GatewayCreatedAt == nil) != (b.GatewayCreatedAt == nil) {
		return false
	}
	if a.GatewayCreatedAt != nil && !a.GatewayCreatedAt.Equal(*b.GatewayCreatedAt) {
		return false
	}
	return string(a.Payload) == string(b.Payload)
}

// RegisterChecksumFailure appends a checksum_failure sentinel, forcing INVALIDATED
func (s *Service) RegisterChecksumFailure(ctx context.Context, paymentID string, raw json.RawMessage) (*domain.Payment, error) {
	return s.registerSentinel(ctx, domain.SentinelChecksumFailure, paymentID, raw)
}

// RegisterTestModeViolation appends a test_mode_violation sentinel, forcing INVALIDATED
func (s *Service) RegisterTestModeViolation(ctx context.Context, paymentID string, raw json.RawMessage) (*domain.Payment, error) {
	return s.registerSentinel(ctx, domain.SentinelTestModeViolation, paymentID, raw)
}

func (s *Service) registerSentinel(ctx context.Context, kind domain.SentinelKind, paymentID string, raw json.RawMessage) (*domain.Payment, error) {
	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !json.Valid(raw) {
		raw = nil
	}

	p, err := s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		op := domain.NewSentinelOperation(kind, p.ID, raw, s.clock.Now())
		if err := s.operations.Append(ctx, tx, op); err != nil {
			return fmt.Errorf("append %s operation: %w", kind, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordSentinel(kind.String())
	s.logger.Warn("Sentinel operation registered",
		ports.String("payment_id", paymentID),
		ports.String("kind", kind.String()),
		ports.String("status", p.Status.String()))

	return p, nil
}

// HandleCallback is the inbound trust boundary for gateway callbacks.
// body must be the exact bytes received; checksum is the value of the
// QuickPay-Checksum-Sha256 header. Any returned error means the callback
// was not applied as a normal merge.
func (s *Service) HandleCallback(ctx context.Context, body []byte, checksum string) (*domain.Payment, error) {
	n, err := ParseNotification(body)
	if err != nil {
		observability.RecordReconciliation(SourceCallback, "rejected", 0, 0)
		return nil, err
	}
	paymentID := n.PaymentID()

	if _, err := s.payments.GetByID(ctx, nil, paymentID); err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Info("Callback for unknown payment", ports.String("payment_id", paymentID))
		}
		return nil, err
	}

	if !VerifyChecksum(body, s.cfg.PrivateKey, checksum) {
		if _, err := s.RegisterChecksumFailure(ctx, paymentID, n.Raw); err != nil {
			return nil, fmt.Errorf("register checksum failure: %w", err)
		}
		return nil, domain.NewDomainError(domain.ErrorCodeChecksumMismatch, "checksum mismatch").
			WithDetail("payment_id", paymentID)
	}

	if n.TestMode != s.cfg.TestMode {
		if _, err := s.RegisterTestModeViolation(ctx, paymentID, n.Raw); err != nil {
			return nil, fmt.Errorf("register test mode violation: %w", err)
		}
		message := "payment with real data during test mode"
		if n.TestMode {
			message = "payment with test data outside test mode"
		}
		return nil, domain.NewDomainError(domain.ErrorCodeTestModeMismatch, message).
			WithDetail("payment_id", paymentID)
	}

	return s.reconcile(ctx, SourceCallback, paymentID, n)
}
