package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "payment_reconciler",
		Name:      "shutdown_duration_seconds",
		Help:      "Total time taken to shut down",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30},
	})

	componentShutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payment_reconciler",
		Name:      "shutdown_errors_total",
		Help:      "Shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc stops one component
type ShutdownFunc func(context.Context) error

// Component is a registered shutdown step
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager stops registered components in reverse registration order.
// Register the database first and the listeners last so requests drain
// before the pool closes.
type Manager struct {
	logger     *zap.Logger
	components []Component
	mu         sync.Mutex
	timeout    time.Duration
	once       sync.Once
}

// NewManager creates a shutdown manager with an overall deadline
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a shutdown step
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, Component{Name: name, ShutdownFunc: fn})
	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// RegisterHTTPServer registers anything with a context-aware Shutdown
func (sm *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	sm.Register(name, server.Shutdown)
}

// RegisterCloser registers a component with Close() error
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(ctx context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr registers a shutdown step that cannot fail
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, or until ctx is done, then shuts down
func (sm *Manager) WaitForShutdown(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	sm.logger.Info("Shutdown signal received",
		zap.Duration("timeout", sm.timeout),
	)
	sm.Shutdown()
}

// Shutdown runs every registered step once, newest first. It returns the
// joined errors of the steps that failed.
func (sm *Manager) Shutdown() error {
	var result error
	sm.once.Do(func() {
		result = sm.shutdown()
	})
	return result
}

func (sm *Manager) shutdown() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	components := make([]Component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		comp := components[i]
		if ctx.Err() != nil {
			sm.logger.Warn("Shutdown deadline exceeded, skipping component",
				zap.String("component", comp.Name))
			errs = append(errs, ctx.Err())
			continue
		}

		stepStart := time.Now()
		if err := comp.ShutdownFunc(ctx); err != nil {
			componentShutdownErrors.WithLabelValues(comp.Name).Inc()
			sm.logger.Error("Component shutdown failed",
				zap.String("component", comp.Name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(stepStart)),
			)
			errs = append(errs, err)
			continue
		}
		sm.logger.Info("Component shut down",
			zap.String("component", comp.Name),
			zap.Duration("elapsed", time.Since(stepStart)),
		)
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	if len(errs) > 0 {
		sm.logger.Error("Shutdown completed with errors",
			zap.Int("error_count", len(errs)),
			zap.Duration("elapsed", time.Since(start)))
		return errors.Join(errs...)
	}
	sm.logger.Info("Shutdown completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}
