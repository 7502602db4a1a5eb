package server

import (
	"context"
	"sync"
	"time"

	"github.com/aidis-io/aidis/internal/observability"
)

// readyWindow is how long a successful probe keeps /readyz green.
const readyWindow = 30 * time.Second

// probeInterval is how often the prober pings the database.
const probeInterval = 15 * time.Second

// Readiness tracks database connectivity for the /readyz endpoint. A
// background prober pings the database and records the last success.
type Readiness struct {
	ping    func(context.Context) error
	logger  *observability.Logger
	metrics *observability.Metrics
	nowFunc func() time.Time

	mu     sync.RWMutex
	lastOK time.Time
}

// NewReadiness builds a readiness tracker over a ping function.
func NewReadiness(ping func(context.Context) error, logger *observability.Logger, metrics *observability.Metrics) *Readiness {
	return &Readiness{
		ping:    ping,
		logger:  logger,
		metrics: metrics,
		nowFunc: time.Now,
	}
}

// Probe pings the database once and records the outcome.
func (r *Readiness) Probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.ping(probeCtx); err != nil {
		r.logger.Warn(ctx, "database probe failed", "error", err)
		if r.metrics != nil {
			r.metrics.DBReady.Set(0)
		}
		return
	}
	r.mu.Lock()
	r.lastOK = r.nowFunc()
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.DBReady.Set(1)
	}
}

// Run probes immediately and then on an interval until ctx ends.
func (r *Readiness) Run(ctx context.Context) {
	r.Probe(ctx)
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Probe(ctx)
		}
	}
}

// Ready reports whether connectivity was verified within the window.
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.lastOK.IsZero() && r.nowFunc().Sub(r.lastOK) <= readyWindow
}
