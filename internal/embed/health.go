package embed

import (
	"log/slog"
	"sync"

	"github.com/FranksOps/sift/internal/metrics"
)

// Health tracks whether the embedding backend is usable. State changes are
// logged and mirrored on the sift_embedder_up gauge.
type Health struct {
	logger *slog.Logger

	mu      sync.Mutex
	up      bool
	lastErr error
}

// NewHealth returns a Health that starts down until the first success.
func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	metrics.SetEmbedderUp(false)
	return &Health{logger: logger}
}

// Up records a successful backend call.
func (h *Health) Up() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.up {
		h.logger.Info("embedding backend available")
	}
	h.up = true
	h.lastErr = nil
	metrics.SetEmbedderUp(true)
}

// Degraded records a backend failure.
func (h *Health) Degraded(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.up || h.lastErr == nil {
		h.logger.Error("embedding backend degraded", "err", err)
	}
	h.up = false
	h.lastErr = err
	metrics.SetEmbedderUp(false)
}

// IsUp reports the last observed state.
func (h *Health) IsUp() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.up
}

// Err returns the last recorded failure, if the backend is down.
func (h *Health) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}
