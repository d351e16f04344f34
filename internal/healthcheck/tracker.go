package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest cycle timing details.
type Snapshot struct {
	LastCycleTime    *time.Time `json:"last_cycle_time"`
	CycleDurationMS  int64      `json:"cycle_duration_ms"`
	ServicesFailing  int        `json:"services_failing"`
	HealthyStreak    int        `json:"healthy_streak"`
	CheckpointsTaken int        `json:"checkpoints_taken"`
}

// Tracker records monitor cycle timing for the health endpoints.
type Tracker struct {
	mu               sync.RWMutex
	lastCycle        time.Time
	cycleDuration    time.Duration
	servicesFailing  int
	healthyStreak    int
	checkpointsTaken int
	ready            bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordCycle updates cycle timing and readiness.
func (t *Tracker) RecordCycle(duration time.Duration, servicesFailing, healthyStreak int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastCycle = now
	t.cycleDuration = duration
	t.servicesFailing = servicesFailing
	t.healthyStreak = healthyStreak
	t.ready = true
	t.mu.Unlock()
}

// RecordCheckpoint bumps the checkpoint counter.
func (t *Tracker) RecordCheckpoint() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.checkpointsTaken++
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastCycle.IsZero() {
		value := t.lastCycle
		last = &value
	}
	return Snapshot{
		LastCycleTime:    last,
		CycleDurationMS:  int64(t.cycleDuration / time.Millisecond),
		ServicesFailing:  t.servicesFailing,
		HealthyStreak:    t.healthyStreak,
		CheckpointsTaken: t.checkpointsTaken,
	}
}

// Ready reports whether at least one successful cycle has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last cycle completed within 2x the poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastCycle.IsZero() {
		return false
	}
	return now.Sub(t.lastCycle) <= 2*pollInterval
}
