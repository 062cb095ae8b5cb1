package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies answered.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency answered with an error.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or was cancelled.
	HealthStatusError = "error"
)

// DependencyStatus is the outcome of one readiness probe.
type DependencyStatus struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// ReadinessReport aggregates the readiness probes of storage and messaging backends.
type ReadinessReport struct {
	Status      string
	Backend     string
	Checks      map[string]DependencyStatus
	GeneratedAt time.Time
}
