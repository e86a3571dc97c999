package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/handlers"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"go.uber.org/zap"
)

// StaleSyncer reconciles payments that have not heard from the gateway recently
type StaleSyncer interface {
	SyncStalePayments(ctx context.Context, olderThan time.Duration, limit int32) (*payment.SyncReport, error)
}

// SyncHandler handles the cron endpoint for the stale-payment sweep
type SyncHandler struct {
	syncer     StaleSyncer
	logger     *zap.Logger
	cronSecret string
	olderThan  time.Duration
	batchSize  int32
	now        func() time.Time
}

// NewSyncHandler creates a sync cron handler. An empty secret disables the endpoint.
func NewSyncHandler(syncer StaleSyncer, logger *zap.Logger, cronSecret string, olderThan time.Duration, batchSize int32) *SyncHandler {
	return &SyncHandler{
		syncer:     syncer,
		logger:     logger,
		cronSecret: cronSecret,
		olderThan:  olderThan,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// SyncRequest optionally overrides the sweep parameters
type SyncRequest struct {
	OlderThan *string `json:"older_than"` // Go duration, e.g. "30m"
	BatchSize *int32  `json:"batch_size"`
}

// SyncResponse reports one sweep
type SyncResponse struct {
	Failed      map[string]string `json:"failed,omitempty"`
	ProcessedAt string            `json:"processed_at"`
	Checked     int               `json:"checked"`
	Changed     int               `json:"changed"`
	Success     bool              `json:"success"`
}

// SyncPayments handles POST /cron/sync-payments
func (h *SyncHandler) SyncPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if h.cronSecret == "" {
		h.respondError(w, http.StatusServiceUnavailable, "cron endpoint disabled")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	olderThan, batchSize, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Stale payment sync triggered",
		zap.Duration("older_than", olderThan),
		zap.Int32("batch_size", batchSize))

	report, err := h.syncer.SyncStalePayments(r.Context(), olderThan, batchSize)
	if err != nil {
		h.logger.Error("Stale payment sync failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	resp := SyncResponse{
		Failed:      report.Failed,
		ProcessedAt: h.now().UTC().Format(time.RFC3339),
		Checked:     report.Checked,
		Changed:     report.Changed,
		Success:     len(report.Failed) == 0,
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent
	}
	handlers.WriteJSON(w, h.logger, status, resp)
}

func (h *SyncHandler) parseRequest(r *http.Request) (time.Duration, int32, error) {
	olderThan, batchSize := h.olderThan, h.batchSize

	var req SyncRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, 0, fmt.Errorf("invalid request body: %w", err)
		}
	}

	if req.OlderThan != nil {
		d, err := time.ParseDuration(*req.OlderThan)
		if err != nil || d <= 0 {
			return 0, 0, fmt.Errorf("invalid older_than: %q", *req.OlderThan)
		}
		olderThan = d
	}
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > 1000 {
			return 0, 0, fmt.Errorf("batch_size must be between 1 and 1000")
		}
		batchSize = *req.BatchSize
	}
	return olderThan, batchSize, nil
}

// authenticateRequest accepts the secret in X-Cron-Secret or as a bearer token
func (h *SyncHandler) authenticateRequest(r *http.Request) bool {
	if secret := r.Header.Get("X-Cron-Secret"); secret != "" {
		return h.matches(secret)
	}
	if auth := r.Header.Get("Authorization"); len(auth) > len("Bearer ") && auth[:len("Bearer ")] == "Bearer " {
		return h.matches(auth[len("Bearer "):])
	}
	return false
}

func (h *SyncHandler) matches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(h.cronSecret)) == 1
}

func (h *SyncHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	handlers.WriteJSON(w, h.logger, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
