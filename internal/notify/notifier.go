package notify

import (
	"context"
	"time"
)

// Incident is a recovery event the monitor wants humans to know about.
type Incident struct {
	Service    string    `json:"service"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Incident kinds emitted by the failsafe monitor.
const (
	KindRollback       = "rollback"
	KindRollbackFailed = "rollback_failed"
	KindRestart        = "restart"
	KindRestartFailed  = "restart_failed"
)

// Notifier delivers incident alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, incidents []Incident) error
}
