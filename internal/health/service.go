package health

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldownDuration = 1 * time.Hour
)

// Service tracks the health of every registered model backend
type Service struct {
	mu               sync.RWMutex
	backends         map[string]*BackendHealth
	info             map[string]BackendInfo
	pinger           Pinger
	failureThreshold int
	cooldownDuration time.Duration
	now              func() time.Time
}

// NewService creates a new health service
func NewService(pinger Pinger, failureThreshold int, cooldownDuration time.Duration) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldownDuration <= 0 {
		cooldownDuration = defaultCooldownDuration
	}

	return &Service{
		backends:         make(map[string]*BackendHealth),
		info:             make(map[string]BackendInfo),
		pinger:           pinger,
		failureThreshold: failureThreshold,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// RegisterBackend adds a backend to the health table
func (s *Service) RegisterBackend(info BackendInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info[info.Name] = info
	if _, exists := s.backends[info.Name]; !exists {
		s.backends[info.Name] = &BackendHealth{
			Name:    info.Name,
			BaseURL: info.BaseURL,
			Status:  StatusUnknown,
		}
		log.Printf("[HEALTH] Registered backend %s (%s)", info.Name, info.BaseURL)
	}
}

// IsHealthy reports whether a backend may be used. Unknown backends are assumed healthy.
func (s *Service) IsHealthy(name string) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.backends[name]
	if !exists {
		return true
	}

	switch h.Status {
	case StatusUnhealthy:
		return false
	case StatusCooldown:
		return s.now().After(h.CooldownUntil)
	default:
		return true
	}
}

// MarkHealthy marks a backend as healthy after a successful request
func (s *Service) MarkHealthy(name string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.backends[name]
	if !exists {
		return
	}

	wasUnhealthy := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = s.now()
	h.LastChecked = s.now()
	h.CooldownUntil = time.Time{}

	if wasUnhealthy {
		log.Printf("[HEALTH] Backend %s recovered - now healthy", name)
	}
}

// MarkUnhealthy records a failure. After reaching the threshold the backend
// goes into cooldown and is skipped until it expires or a check succeeds.
func (s *Service) MarkUnhealthy(name string, errMsg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.backends[name]
	if !exists {
		return
	}

	h.FailureCount++
	h.LastError = errMsg
	h.LastChecked = s.now()

	if h.FailureCount >= s.failureThreshold {
		h.Status = StatusCooldown
		h.CooldownUntil = s.now().Add(s.cooldownDuration)
		log.Printf("[HEALTH] Backend %s marked UNHEALTHY after %d failures: %s",
			name, h.FailureCount, truncateStr(errMsg, 200))
	} else {
		log.Printf("[HEALTH] Backend %s failure %d/%d: %s",
			name, h.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
	}
}

// SetCooldown puts a backend into cooldown (typically after a quota error)
func (s *Service) SetCooldown(name string, duration time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.backends[name]
	if !exists {
		return
	}

	h.Status = StatusCooldown
	h.CooldownUntil = s.now().Add(duration)
	h.LastChecked = s.now()

	log.Printf("[HEALTH] Backend %s in COOLDOWN until %s (reason: %s)",
		name, h.CooldownUntil.Format(time.RFC3339), truncateStr(h.LastError, 100))
}

// IsInCooldown checks if a backend is currently in cooldown
func (s *Service) IsInCooldown(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.backends[name]
	if !exists || h.Status != StatusCooldown {
		return false
	}
	return s.now().Before(h.CooldownUntil)
}

// CheckBackend actively checks one backend and updates its status
func (s *Service) CheckBackend(ctx context.Context, name string) error {
	s.mu.RLock()
	info, exists := s.info[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("backend not registered: %s", name)
	}
	if s.pinger == nil {
		return fmt.Errorf("no pinger configured")
	}

	latency, err := s.pinger.Ping(ctx, info)
	if err != nil {
		if IsQuotaError(0, err.Error()) {
			s.mu.Lock()
			if h := s.backends[name]; h != nil {
				h.LastError = err.Error()
			}
			s.mu.Unlock()
			s.SetCooldown(name, ParseCooldownDuration(0, err.Error()))
		} else {
			s.MarkUnhealthy(name, err.Error())
		}
		return err
	}

	s.MarkHealthy(name)
	s.mu.Lock()
	if h := s.backends[name]; h != nil {
		h.LastLatencyMs = latency
	}
	s.mu.Unlock()
	return nil
}

// CheckAll checks every registered backend
func (s *Service) CheckAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, name := range s.Names() {
		results[name] = s.CheckBackend(ctx, name)
	}
	return results
}

// Names returns the registered backend names, sorted
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStatus returns a snapshot of every backend's status
func (s *Service) GetStatus() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := make(map[string]interface{}, len(s.backends))
	for name, h := range s.backends {
		state := h.Status
		if state == StatusCooldown && s.now().After(h.CooldownUntil) {
			state = StatusUnknown
		}
		status[name] = map[string]interface{}{
			"status":        state,
			"failure_count": h.FailureCount,
			"last_error":    h.LastError,
			"latency_ms":    h.LastLatencyMs,
		}
	}
	return status
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
