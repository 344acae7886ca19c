package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"aitwin/internal/health"

	"github.com/gofiber/fiber/v2"
)

// ComponentCheck reports whether an optional dependency is reachable
type ComponentCheck func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	mode     string
	backends *health.Service

	mu         sync.RWMutex
	components map[string]ComponentCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mode string, backends *health.Service) *HealthHandler {
	return &HealthHandler{
		mode:       mode,
		backends:   backends,
		components: make(map[string]ComponentCheck),
	}
}

// AddComponent registers a dependency. A nil check reports it as disabled.
func (h *HealthHandler) AddComponent(name string, check ComponentCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = check
}

// Handle responds with server health status.
// A failing component never fails the endpoint; the service degrades instead.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	components := make(fiber.Map, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.components[name]
		h.mu.RUnlock()

		switch {
		case check == nil:
			components[name] = "disabled"
		case check(ctx) != nil:
			components[name] = "unavailable"
		default:
			components[name] = "ok"
		}
	}

	return c.JSON(fiber.Map{
		"status":     "active",
		"mode":       h.mode,
		"components": components,
		"backends":   h.backends.GetStatus(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
