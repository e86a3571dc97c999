package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound gateway calls
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "Total outbound requests to the payment gateway",
	}, []string{
		"operation", // create, update, link, get, capture, cancel, refund
		"result",    // success, http_error, invalid_json, transport_error, timeout
	})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Duration of outbound gateway requests",
		// Buckets: 50ms to 30s (the request timeout)
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"operation",
	})

	// Callback and pull reconciliation
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_reconciliations_total",
		Help:      "Total reconciliations of gateway notifications into the operation log",
	}, []string{
		"source", // callback, sync
		"result", // applied, rejected, failed
	})

	reconciledOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_reconciled_operations_total",
		Help:      "Remote operations merged into the operation log",
	}, []string{
		"mode", // inserted, updated
	})

	sentinelOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_sentinel_operations_total",
		Help:      "Sentinel operations appended for rejected callbacks",
	}, []string{
		"kind", // checksum_failure, test_mode_violation
	})

	derivationAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_derivation_anomalies_total",
		Help:      "Derivations that produced totals outside the expected ranges",
	})

	statusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_status_transitions_total",
		Help:      "Committed payment status changes",
	}, []string{
		"from",
		"to",
	})

	// Merchant-initiated actions
	paymentActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_actions_total",
		Help:      "Capture, cancel and refund requests",
	}, []string{
		"action", // capture, cancel, refund
		"result", // requested, rejected, gateway_failed, failed
	})

	paymentActionAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_action_amount_minor_total",
		Help:      "Requested amount in minor units for accepted capture and refund requests",
	}, []string{
		"action",
	})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_batch_items_total",
		Help:      "Payments processed by batch actions",
	}, []string{
		"action",
		"result", // succeeded, failed
	})

	lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_lock_wait_seconds",
		Help:      "Time spent waiting for the per-payment lock",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// Outbound status events
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_published_total",
		Help:      "Payment status events handed to the broker",
	}, []string{
		"broker", // nats, kafka, log
		"status", // success, failed
	})
)

// RecordGatewayRequest records one outbound gateway call
func RecordGatewayRequest(operation, result string, duration float64) {
	gatewayRequestsTotal.WithLabelValues(operation, result).Inc()
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordReconciliation records the outcome of applying one notification
func RecordReconciliation(source, result string, inserted, updated int) {
	reconciliationsTotal.WithLabelValues(source, result).Inc()
	if inserted > 0 {
		reconciledOperationsTotal.WithLabelValues("inserted").Add(float64(inserted))
	}
	if updated > 0 {
		reconciledOperationsTotal.WithLabelValues("updated").Add(float64(updated))
	}
}

// RecordSentinel records a rejected callback
func RecordSentinel(kind string) {
	sentinelOperationsTotal.WithLabelValues(kind).Inc()
}

// RecordDerivationAnomaly records totals a well-formed log never produces
func RecordDerivationAnomaly() {
	derivationAnomaliesTotal.Inc()
}

// RecordStatusTransition records a committed status change
func RecordStatusTransition(from, to string) {
	if from == to {
		return
	}
	statusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordPaymentAction records a capture, cancel or refund request
func RecordPaymentAction(action, result string, amount int64) {
	paymentActionsTotal.WithLabelValues(action, result).Inc()

	// Only accepted requests count toward the requested volume
	if result == "requested" && amount > 0 {
		paymentActionAmount.WithLabelValues(action).Add(float64(amount))
	}
}

// RecordBatchAction records the per-payment outcomes of one batch action
func RecordBatchAction(action string, succeeded, failed int) {
	if succeeded > 0 {
		batchItemsTotal.WithLabelValues(action, "succeeded").Add(float64(succeeded))
	}
	if failed > 0 {
		batchItemsTotal.WithLabelValues(action, "failed").Add(float64(failed))
	}
}

// RecordLockWait records the time spent acquiring a payment lock
func RecordLockWait(seconds float64) {
	lockWaitDuration.Observe(seconds)
}

// RecordEventPublished records an outbound status event
func RecordEventPublished(broker, status string) {
	eventsPublishedTotal.WithLabelValues(broker, status).Inc()
}
