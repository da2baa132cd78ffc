package diagnose

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

const defaultPollInterval = 60 * time.Second

// Diagnoser runs one diagnosis pass. Satisfied by *Engine.
type Diagnoser interface {
	Diagnose(ctx context.Context, rawErr error, state *shared.AuthState, perms *shared.PermissionSet) shared.DiagnosticResult
}

// TransitionFunc is invoked when the monitored health state flips between
// healthy and unhealthy. It is never called for repeat observations.
type TransitionFunc func(isHealthy bool, issues []shared.Issue)

type healthState int

const (
	healthUnknown healthState = iota
	healthHealthy
	healthUnhealthy
)

// Monitor re-runs diagnosis on an interval and reports health transitions.
type Monitor struct {
	diagnoser Diagnoser
	state     *shared.AuthState
	perms     *shared.PermissionSet
	interval  time.Duration
	onChange  TransitionFunc
	logger    *zap.Logger
	metrics   *Metrics

	mu         sync.Mutex
	lastStatus healthState
	latest     *shared.DiagnosticResult
}

// NewMonitor builds a health monitor. A non-positive interval falls back
// to 60 seconds; onChange may be nil.
func NewMonitor(diagnoser Diagnoser, state *shared.AuthState, perms *shared.PermissionSet, onChange TransitionFunc, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		diagnoser: diagnoser,
		state:     state,
		perms:     perms,
		interval:  interval,
		onChange:  onChange,
		logger:    logger,
		metrics:   GetMetrics(),
	}
}

// Start polls immediately, then on every interval tick until the returned
// cancel function is called or ctx is done. An in-flight poll completes
// but schedules no successor after cancellation.
func (m *Monitor) Start(ctx context.Context) (cancel func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel = context.WithCancel(ctx)

	go func() {
		m.poll(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}()

	return cancel
}

// Latest returns the most recent diagnostic result, or nil before the
// first poll completes.
func (m *Monitor) Latest() *shared.DiagnosticResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil
	}
	result := *m.latest
	return &result
}

// poll runs one diagnosis pass. A failed poll is logged and the loop
// continues.
func (m *Monitor) poll(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Warn("health poll failed", zap.Any("panic", recovered))
		}
	}()

	m.metrics.RecordMonitorPoll()
	result := m.diagnoser.Diagnose(ctx, nil, m.state, m.perms)

	m.mu.Lock()
	observed := healthUnhealthy
	if result.IsHealthy {
		observed = healthHealthy
	}
	changed := observed != m.lastStatus
	m.lastStatus = observed
	m.latest = &result
	m.mu.Unlock()

	if changed {
		m.metrics.RecordTransition()
		m.logger.Info("health state transition",
			zap.Bool("healthy", result.IsHealthy),
			zap.Int("issues", len(result.Issues)),
		)
		if m.onChange != nil {
			m.onChange(result.IsHealthy, result.Issues)
		}
	}
}
