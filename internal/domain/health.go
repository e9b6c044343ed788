package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but the service keeps serving.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness checks.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
