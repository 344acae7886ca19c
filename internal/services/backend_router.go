package services

import (
	"errors"
	"log"

	"aitwin/internal/health"
	"aitwin/internal/models"
)

// BackendRoute is a backend plus the model to request from it
type BackendRoute struct {
	Backend ChatBackend
	Model   string // empty selects the backend's default model
}

// Name is the backend's name, or empty for an unset route
func (r BackendRoute) Name() string {
	if r.Backend == nil {
		return ""
	}
	return r.Backend.Name()
}

// Key identifies the route for per-model bookkeeping
func (r BackendRoute) Key() string {
	if r.Backend == nil {
		return ""
	}
	return r.Backend.Name() + ":" + r.Model
}

// BackendRouter maps backend names and variants to concrete backends.
// "general" is the fast cloud model, "local" the self-hosted one; the
// fallback is the cloud backend with a stronger model.
type BackendRouter struct {
	backends      map[string]ChatBackend
	fallback      ChatBackend
	fallbackModel string
	health        *health.Service
}

// NewBackendRouter creates a router. fallback may be nil to disable fallback.
func NewBackendRouter(general, local, fallback ChatBackend, fallbackModel string, healthService *health.Service) *BackendRouter {
	backends := make(map[string]ChatBackend)
	if general != nil {
		backends[models.BackendGeneral] = general
	}
	if local != nil {
		backends[models.BackendLocal] = local
	}
	return &BackendRouter{
		backends:      backends,
		fallback:      fallback,
		fallbackModel: fallbackModel,
		health:        healthService,
	}
}

// Resolve picks the route for a backend name and optional variant.
// The variant selects a model (adapter) on the local backend.
// Unknown names resolve to the fallback route.
func (r *BackendRouter) Resolve(backend, variant string) BackendRoute {
	b, ok := r.backends[backend]
	if !ok {
		if backend != "" {
			log.Printf("⚠️  [ROUTER] Unknown backend %q, using fallback", backend)
		}
		route, _ := r.Fallback()
		return route
	}

	route := BackendRoute{Backend: b}
	if backend == models.BackendLocal && variant != "" {
		route.Model = variant
	}
	return route
}

// Fallback returns the secondary cloud route
func (r *BackendRouter) Fallback() (BackendRoute, bool) {
	if r.fallback == nil {
		return BackendRoute{}, false
	}
	return BackendRoute{Backend: r.fallback, Model: r.fallbackModel}, true
}

// Usable reports whether a route's backend is not in cooldown
func (r *BackendRouter) Usable(route BackendRoute) bool {
	return route.Backend != nil && r.health.IsHealthy(route.Backend.Name())
}

// ReportSuccess records a successful call on the route's backend
func (r *BackendRouter) ReportSuccess(route BackendRoute) {
	if route.Backend != nil {
		r.health.MarkHealthy(route.Backend.Name())
	}
}

// ReportFailure records an outage-type failure on the route's backend
func (r *BackendRouter) ReportFailure(route BackendRoute, err error) {
	if route.Backend == nil || err == nil {
		return
	}
	var be *BackendError
	if errors.As(err, &be) && health.IsQuotaError(be.StatusCode, be.Body) {
		r.health.SetCooldown(route.Backend.Name(), health.ParseCooldownDuration(be.StatusCode, be.Body))
		return
	}
	r.health.MarkUnhealthy(route.Backend.Name(), err.Error())
}
