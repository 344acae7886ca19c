package services

import (
	"errors"
	"testing"
	"time"

	"aitwin/internal/health"
	"aitwin/internal/models"
)

func TestBackendRouter_Resolve(t *testing.T) {
	general := &fakeBackend{name: "groq"}
	local := &fakeBackend{name: "ollama"}
	fallback := &fakeBackend{name: "groq-fallback"}
	router := NewBackendRouter(general, local, fallback, "llama-3.1-70b-versatile", nil)

	tests := []struct {
		name        string
		backend     string
		variant     string
		wantBackend string
		wantModel   string
	}{
		{"general ignores variant", models.BackendGeneral, "phi3", "groq", ""},
		{"local with adapter", models.BackendLocal, "phi3", "ollama", "phi3"},
		{"local default model", models.BackendLocal, "", "ollama", ""},
		{"unknown uses fallback", "mystery", "", "groq-fallback", "llama-3.1-70b-versatile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := router.Resolve(tt.backend, tt.variant)
			if route.Backend.Name() != tt.wantBackend || route.Model != tt.wantModel {
				t.Errorf("Resolve(%q, %q) = %s/%q, want %s/%q",
					tt.backend, tt.variant, route.Backend.Name(), route.Model, tt.wantBackend, tt.wantModel)
			}
		})
	}
}

func TestBackendRouter_NoFallback(t *testing.T) {
	router := NewBackendRouter(&fakeBackend{name: "groq"}, nil, nil, "", nil)

	if _, ok := router.Fallback(); ok {
		t.Error("Expected no fallback")
	}
	if route := router.Resolve(models.BackendLocal, "phi3"); route.Backend != nil {
		t.Errorf("Expected empty route for missing local backend, got %s", route.Key())
	}
}

func TestBackendRouter_RouteKey(t *testing.T) {
	route := BackendRoute{Backend: &fakeBackend{name: "ollama"}, Model: "phi3"}
	if route.Key() != "ollama:phi3" {
		t.Errorf("Unexpected key %q", route.Key())
	}
	if (BackendRoute{}).Key() != "" {
		t.Error("Expected empty key for empty route")
	}
}

func TestBackendRouter_FailureReporting(t *testing.T) {
	hs := health.NewService(nil, 2, time.Hour)
	local := &fakeBackend{name: "ollama"}
	hs.RegisterBackend(health.BackendInfo{Name: "ollama"})
	router := NewBackendRouter(nil, local, nil, "", hs)
	route := router.Resolve(models.BackendLocal, "")

	router.ReportFailure(route, errors.New("connection refused"))
	if !router.Usable(route) {
		t.Fatal("Expected backend usable below the failure threshold")
	}

	router.ReportFailure(route, errors.New("connection refused"))
	if router.Usable(route) {
		t.Fatal("Expected backend in cooldown after reaching the threshold")
	}

	router.ReportSuccess(route)
	if !router.Usable(route) {
		t.Error("Expected success to restore the backend")
	}
}

func TestBackendRouter_QuotaErrorSetsCooldown(t *testing.T) {
	hs := health.NewService(nil, 5, time.Hour)
	general := &fakeBackend{name: "groq"}
	hs.RegisterBackend(health.BackendInfo{Name: "groq"})
	router := NewBackendRouter(general, nil, nil, "", hs)
	route := router.Resolve(models.BackendGeneral, "")

	router.ReportFailure(route, &BackendError{StatusCode: 429, Body: "rate limit reached", unavailable: true})

	if !hs.IsInCooldown("groq") {
		t.Error("Expected quota error to put the backend in cooldown immediately")
	}
}
