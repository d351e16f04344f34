// Package monitor implements the failsafe loop: poll container health,
// revert and restart failing services, checkpoint sustained health.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/checkpoint"
	"github.com/okrensky/modelgate/internal/gitrepo"
	"github.com/okrensky/modelgate/internal/healthcheck"
	"github.com/okrensky/modelgate/internal/ledger"
	"github.com/okrensky/modelgate/internal/metrics"
	"github.com/okrensky/modelgate/internal/notify"
	"github.com/okrensky/modelgate/internal/runtime"
)

const pollRetryMaxElapsed = 15 * time.Second

// Ticker is the minimal interface needed for driving the monitor loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Monitor runs the failsafe loop. It is single-threaded and cooperative:
// one cycle at a time, one blocking wait per cycle.
type Monitor struct {
	logger           zerolog.Logger
	pollInterval     time.Duration
	healthyThreshold int
	tickerFactory    func(time.Duration) Ticker
	runtime          runtime.Client
	repo             gitrepo.Repo
	ledger           *ledger.Ledger
	snapshotter      *checkpoint.Snapshotter
	notifier         notify.Notifier
	metrics          *metrics.Metrics
	tracker          *healthcheck.Tracker
	serviceDirs      map[string]string
	healthyCycles    int
	now              func() time.Time
}

// Option customizes monitor behavior.
type Option func(*Monitor)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(m *Monitor) {
		m.tickerFactory = factory
	}
}

// WithNotifier sets the incident notifier.
func WithNotifier(notifier notify.Notifier) Option {
	return func(m *Monitor) {
		m.notifier = notifier
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = collector
	}
}

// WithTracker sets the healthcheck tracker.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(m *Monitor) {
		m.tracker = tracker
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New constructs a Monitor. serviceDirs is the immutable service→directory
// lookup table built from the mapping file at startup.
func New(logger zerolog.Logger, pollInterval time.Duration, healthyThreshold int, rt runtime.Client, repo gitrepo.Repo, l *ledger.Ledger, snapshotter *checkpoint.Snapshotter, serviceDirs map[string]string, opts ...Option) *Monitor {
	m := &Monitor{
		logger:           logger,
		pollInterval:     pollInterval,
		healthyThreshold: healthyThreshold,
		runtime:          rt,
		repo:             repo,
		ledger:           l,
		snapshotter:      snapshotter,
		serviceDirs:      serviceDirs,
		now:              time.Now,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the loop and blocks until the context is canceled. Cancellation
// interrupts the wait between cycles, not a cycle in progress.
func (m *Monitor) Run(ctx context.Context) error {
	if m.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	if err := m.runtime.Ping(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("container runtime not reachable at startup")
	}

	// Run immediately on startup
	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error().Err(err).Msg("initial monitor cycle failed")
	}

	ticker := m.tickerFactory(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("failsafe monitor stopped")
			return nil
		case <-ticker.C():
			if err := m.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					m.logger.Info().Msg("failsafe monitor stopped")
					return nil
				}
				m.logger.Error().Err(err).Msg("monitor cycle failed")
			}
		}
	}
}

// RunOnce executes a single poll cycle.
func (m *Monitor) RunOnce(ctx context.Context) error {
	start := m.now()

	snapshot, err := m.poll(ctx)
	if err != nil {
		m.metrics.IncRuntimeErrors()
		return err
	}

	m.metrics.SetFailingServices("unhealthy", len(snapshot.Unhealthy))
	m.metrics.SetFailingServices("exited", len(snapshot.Exited))

	failing := 0
	if snapshot.Healthy() {
		m.healthyCycles++
		m.logger.Debug().Int("healthy_cycles", m.healthyCycles).Msg("all services healthy")
		if m.healthyCycles >= m.healthyThreshold {
			m.attemptCheckpoint(ctx)
			m.healthyCycles = 0
		}
	} else {
		m.healthyCycles = 0
		incidents := m.handleFailures(ctx, snapshot)
		failing = len(affectedServices(snapshot))
		if m.notifier != nil && len(incidents) > 0 {
			if err := m.notifier.Notify(ctx, incidents); err != nil {
				m.logger.Error().Err(err).Msg("incident notification failed")
			}
		}
	}

	duration := m.now().Sub(start)
	m.metrics.ObserveCycleDuration(duration)
	m.metrics.SetHealthyStreak(m.healthyCycles)
	m.metrics.SetLastSuccessfulCycleTimestamp(m.now())
	m.tracker.RecordCycle(duration, failing, m.healthyCycles)

	return nil
}

// poll queries the runtime with bounded retry so one flaky API call does not
// trigger spurious recoveries.
func (m *Monitor) poll(ctx context.Context) (runtime.HealthSnapshot, error) {
	var snapshot runtime.HealthSnapshot

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxElapsedTime = pollRetryMaxElapsed

	err := backoff.Retry(func() error {
		var err error
		snapshot, err = m.runtime.Snapshot(ctx)
		return err
	}, backoff.WithContext(backoffCfg, ctx))

	return snapshot, err
}

func (m *Monitor) handleFailures(ctx context.Context, snapshot runtime.HealthSnapshot) []notify.Incident {
	var incidents []notify.Incident
	for _, service := range affectedServices(snapshot) {
		incidents = append(incidents, m.recoverService(ctx, service)...)
	}
	return incidents
}

// recoverService reverts the service's source directory to HEAD (skipping
// when clean) and restarts the container. A failed revert is terminal for
// the service: the directory state is unknown, so no restart is attempted.
func (m *Monitor) recoverService(ctx context.Context, service string) []notify.Incident {
	m.logger.Error().Str("service", service).Msg("service failing; starting recovery")

	dir, ok := m.serviceDirs[service]
	if !ok {
		m.logger.Error().Str("service", service).Msg("no source directory mapped; recovery skipped")
		return nil
	}

	dirty, err := m.repo.HasChanges(ctx, dir)
	if err != nil {
		return m.rollbackFailed(service, dir, err)
	}

	if !dirty {
		// Idempotent no-op: nothing to revert.
		m.logger.Info().Str("service", service).Str("dir", dir).Msg("no uncommitted changes; revert skipped")
		m.record(ledger.ActionRollback, service, dir, "", ledger.StatusSkipped)
		m.metrics.IncRollbacks("skipped")
	} else {
		if err := m.repo.CheckoutHead(ctx, dir); err != nil {
			return m.rollbackFailed(service, dir, err)
		}
		m.logger.Warn().Str("service", service).Str("dir", dir).Msg("reverted working changes to last committed revision")
		m.record(ledger.ActionRollback, service, dir, "HEAD", ledger.StatusSuccess)
		m.metrics.IncRollbacks("success")
	}

	incidents := []notify.Incident{{
		Service:    service,
		Kind:       notify.KindRollback,
		Detail:     "reverted " + dir + " to HEAD",
		OccurredAt: m.now().UTC(),
	}}
	if !dirty {
		incidents = nil
	}

	if err := m.runtime.Restart(ctx, service); err != nil {
		m.logger.Error().Err(err).Str("service", service).Msg("restart failed")
		m.record(ledger.ActionRestart, service, "", "", ledger.StatusRuntimeError)
		m.metrics.IncRestarts("failure")
		return append(incidents, notify.Incident{
			Service:    service,
			Kind:       notify.KindRestartFailed,
			Detail:     err.Error(),
			OccurredAt: m.now().UTC(),
		})
	}

	m.logger.Info().Str("service", service).Msg("service restarted")
	m.record(ledger.ActionRestart, service, "", "", ledger.StatusSuccess)
	m.metrics.IncRestarts("success")
	return append(incidents, notify.Incident{
		Service:    service,
		Kind:       notify.KindRestart,
		OccurredAt: m.now().UTC(),
	})
}

// rollbackFailed logs the terminal branch: manual intervention required.
func (m *Monitor) rollbackFailed(service, dir string, err error) []notify.Incident {
	m.logger.Error().Err(err).
		Str("service", service).
		Str("dir", dir).
		Msg("ROLLBACK FAILED; manual intervention required, restart suppressed")
	m.record(ledger.ActionRollback, service, dir, "HEAD", ledger.StatusGitError)
	m.metrics.IncRollbacks("failure")
	return []notify.Incident{{
		Service:    service,
		Kind:       notify.KindRollbackFailed,
		Detail:     err.Error(),
		OccurredAt: m.now().UTC(),
	}}
}

// attemptCheckpoint snapshots pending work after sustained health. A clean
// tree is a skip; a tag collision is a warning, never an error.
func (m *Monitor) attemptCheckpoint(ctx context.Context) {
	result, err := m.snapshotter.Take(ctx, "")
	switch {
	case errors.Is(err, checkpoint.ErrTagExists):
		m.logger.Warn().Str("tag", result.Tag).Msg("checkpoint tag collision; will retry next threshold")
	case err != nil:
		m.logger.Error().Err(err).Msg("checkpoint failed")
	case result.Skipped:
		m.logger.Debug().Msg("checkpoint skipped; working tree clean")
	default:
		m.metrics.IncCheckpoints()
		m.tracker.RecordCheckpoint()
	}
}

func (m *Monitor) record(action ledger.Action, service, source, destination, status string) {
	err := m.ledger.Append(ledger.Entry{
		Action:      action,
		Subject:     service,
		Source:      source,
		Destination: destination,
		Status:      status,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("service", service).Msg("failed to append ledger entry")
	}
}

// affectedServices merges the unhealthy and exited sets, preserving order
// and dropping duplicates (a container can be both).
func affectedServices(snapshot runtime.HealthSnapshot) []string {
	seen := make(map[string]bool)
	var services []string
	for _, set := range [][]string{snapshot.Unhealthy, snapshot.Exited} {
		for _, service := range set {
			if seen[service] {
				continue
			}
			seen[service] = true
			services = append(services, service)
		}
	}
	return services
}
