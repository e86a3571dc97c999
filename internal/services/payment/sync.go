package payment

import (
	"context"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// staleStatuses are waiting on a callback the gateway may never have delivered
var staleStatuses = []domain.PaymentStatus{
	domain.PaymentStatusCreated,
	domain.PaymentStatusAccepted,
	domain.PaymentStatusCaptureRequested,
	domain.PaymentStatusCancelRequested,
	domain.PaymentStatusRefundRequested,
}

// SyncReport summarises one stale-payment sweep
type SyncReport struct {
	Failed  map[string]string `json:"failed,omitempty"`
	Checked int               `json:"checked"`
	Changed int               `json:"changed"`
}

// SyncStalePayments re-reads payments that have been waiting longer than
// olderThan and reconciles them against the gateway. A failure on one
// payment does not stop the sweep.
func (s *Service) SyncStalePayments(ctx context.Context, olderThan time.Duration, limit int32) (*SyncReport, error) {
	before := s.clock.Now().Add(-olderThan)

	stale, err := s.payments.ListByStatus(ctx, nil, staleStatuses, before, limit)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Failed: make(map[string]string)}
	for _, p := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		synced, err := s.SyncPayment(ctx, p.ID)
		if err != nil {
			report.Failed[p.ID] = err.Error()
			s.logger.Warn("Stale payment sync failed",
				ports.String("payment_id", p.ID),
				ports.Err(err))
			continue
		}
		if synced.Status != p.Status ||
			synced.AmountAuthorized != p.AmountAuthorized ||
			synced.AmountCaptured != p.AmountCaptured ||
			synced.AmountRefunded != p.AmountRefunded {
			report.Changed++
		}
	}

	s.logger.Info("Stale payment sync completed",
		ports.Int("checked", report.Checked),
		ports.Int("changed", report.Changed),
		ports.Int("failed", len(report.Failed)))

	return report, nil
}
