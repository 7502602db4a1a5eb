package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aidis-io/aidis/internal/observability"
)

// DefaultSweepSchedule runs the idle sweep every five minutes.
const DefaultSweepSchedule = "*/5 * * * *"

// DefaultFlushInterval bounds counter loss on crash.
const DefaultFlushInterval = time.Minute

// Maintenance runs the orchestrator's background loops: the idle sweep
// on a cron schedule and the periodic counter flush.
type Maintenance struct {
	orch   *Orchestrator
	logger *observability.Logger

	schedule   cron.Schedule
	flushEvery time.Duration
	nowFunc    func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewMaintenance parses the sweep schedule (standard five-field cron)
// and prepares the loops. Start must be called to run them.
func NewMaintenance(orch *Orchestrator, logger *observability.Logger, sweepSpec string, flushEvery time.Duration) (*Maintenance, error) {
	if sweepSpec == "" {
		sweepSpec = DefaultSweepSchedule
	}
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}
	schedule, err := cron.ParseStandard(sweepSpec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", sweepSpec, err)
	}
	return &Maintenance{
		orch:       orch,
		logger:     logger,
		schedule:   schedule,
		flushEvery: flushEvery,
		nowFunc:    time.Now,
		stop:       make(chan struct{}),
	}, nil
}

// Start launches the sweep and flush loops. They run until Stop or
// context cancellation.
func (m *Maintenance) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.sweepLoop(ctx)
	go m.flushLoop(ctx)
}

// Stop halts the loops and waits for them to finish. A final counter
// flush runs so shutdown loses nothing.
func (m *Maintenance) Stop(ctx context.Context) {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
	if err := m.orch.FlushAll(ctx); err != nil {
		m.logger.Warn(ctx, "final counter flush failed", "error", err)
	}
}

func (m *Maintenance) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		next := m.schedule.Next(m.nowFunc())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.stop:
			timer.Stop()
			return
		case <-timer.C:
			m.orch.SweepIdle(ctx)
		}
	}
}

func (m *Maintenance) flushLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.orch.FlushAll(ctx); err != nil {
				m.logger.Warn(ctx, "periodic counter flush failed", "error", err)
			}
		}
	}
}
