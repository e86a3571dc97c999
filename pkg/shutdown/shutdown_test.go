package shutdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_ShutdownOrder(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	m.RegisterNoErr("database", record("database"))
	m.RegisterNoErr("event publisher", record("event publisher"))
	m.RegisterNoErr("http server", record("http server"))

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"http server", "event publisher", "database"}, order)

	// second call is a no-op
	require.NoError(t, m.Shutdown())
	assert.Len(t, order, 3)
}

func TestManager_CollectsErrors(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	boom := errors.New("close failed")

	called := false
	m.RegisterNoErr("database", func() { called = true })
	m.Register("kafka", func(ctx context.Context) error { return boom })

	err := m.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later components still shut down after a failure")
}

func TestInFlightTracker(t *testing.T) {
	tracker := NewInFlightTracker("callbacks", zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	<-started

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- tracker.Shutdown(context.Background())
	}()

	require.Eventually(t, func() bool {
		if tracker.Add() {
			tracker.Done()
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	// new work is rejected once shutdown begins
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
	assert.NoError(t, <-shutdownErr)
}

func TestInFlightTracker_Timeout(t *testing.T) {
	tracker := NewInFlightTracker("callbacks", zap.NewNop())
	require.True(t, tracker.Add())
	defer tracker.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPeriodicWorker(t *testing.T) {
	worker := NewPeriodicWorker("stale-sync", 5*time.Millisecond, zap.NewNop())

	var runs atomic.Int32
	worker.Start(func(ctx context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, worker.Shutdown(context.Background()))

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}
