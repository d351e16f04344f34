// Package runtime talks to the container runtime: list service health and
// restart a service by name. Everything else container-related is out of
// scope.
package runtime

import "context"

// HealthSnapshot is one poll cycle's view of the runtime: which services are
// reporting unhealthy and which have exited or crashed. It is ephemeral and
// recomputed every cycle.
type HealthSnapshot struct {
	Unhealthy []string
	Exited    []string
}

// Healthy reports whether nothing is failing.
func (s HealthSnapshot) Healthy() bool {
	return len(s.Unhealthy) == 0 && len(s.Exited) == 0
}

// Client defines the container runtime operations the failsafe monitor
// needs. The interface enables mocking in tests.
type Client interface {
	// Ping validates connectivity to the runtime daemon.
	Ping(ctx context.Context) error

	// Snapshot lists the services currently unhealthy or exited.
	Snapshot(ctx context.Context) (HealthSnapshot, error)

	// Restart restarts the named service.
	Restart(ctx context.Context, service string) error

	// Close releases resources associated with the client.
	Close() error
}
