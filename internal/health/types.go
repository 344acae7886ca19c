package health

import (
	"context"
	"time"
)

// HealthStatus represents the health state of a model backend
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusCooldown  HealthStatus = "cooldown"
	StatusUnknown   HealthStatus = "unknown"
)

// BackendHealth tracks the health of one model backend
type BackendHealth struct {
	Name          string
	BaseURL       string
	Status        HealthStatus
	LastChecked   time.Time
	LastSuccessAt time.Time
	LastLatencyMs int
	FailureCount  int
	LastError     string
	CooldownUntil time.Time
}

// BackendInfo is what a check needs to reach a backend
type BackendInfo struct {
	Name    string
	BaseURL string
	APIKey  string
}

// Pinger performs a lightweight reachability check of a backend.
// Returns latency in milliseconds and any error encountered.
type Pinger interface {
	Ping(ctx context.Context, backend BackendInfo) (latencyMs int, err error)
}
