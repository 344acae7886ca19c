package jobs

import (
	"context"
	"log"
	"time"
)

// BackendSource is the part of the health service the checker drives
type BackendSource interface {
	Names() []string
	CheckBackend(ctx context.Context, name string) error
}

// BackendHealthChecker periodically checks every registered model backend
// so that backends in cooldown recover without waiting for user traffic
type BackendHealthChecker struct {
	health BackendSource
	pause  time.Duration
}

// NewBackendHealthChecker creates the job. pause is the delay between checks.
func NewBackendHealthChecker(health BackendSource, pause time.Duration) *BackendHealthChecker {
	return &BackendHealthChecker{health: health, pause: pause}
}

// Run checks all backends once
func (c *BackendHealthChecker) Run(ctx context.Context) error {
	names := c.health.Names()
	log.Printf("[HEALTH-JOB] Checking %d backend(s)...", len(names))

	healthy, failed := 0, 0
	for i, name := range names {
		select {
		case <-ctx.Done():
			log.Println("[HEALTH-JOB] Cancelled")
			return ctx.Err()
		default:
		}

		if err := c.health.CheckBackend(ctx, name); err != nil {
			failed++
			log.Printf("[HEALTH-JOB] %s: FAILED (%v)", name, err)
		} else {
			healthy++
		}

		if c.pause > 0 && i < len(names)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pause):
			}
		}
	}

	log.Printf("[HEALTH-JOB] Health checks complete: %d checked, %d healthy, %d failed",
		len(names), healthy, failed)
	return nil
}
