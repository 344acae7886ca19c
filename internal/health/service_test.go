package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context, BackendInfo) (int, error) {
	return 1, p.err
}

func TestService_FailureThresholdAndRecovery(t *testing.T) {
	svc := NewService(nil, 2, time.Minute)
	svc.RegisterBackend(BackendInfo{Name: "local", BaseURL: "http://ollama"})

	if !svc.IsHealthy("local") {
		t.Fatal("new backend should be assumed healthy")
	}

	svc.MarkUnhealthy("local", "connection refused")
	if !svc.IsHealthy("local") {
		t.Error("one failure should not trip the threshold")
	}

	svc.MarkUnhealthy("local", "connection refused")
	if svc.IsHealthy("local") || !svc.IsInCooldown("local") {
		t.Error("backend should be in cooldown after reaching the threshold")
	}

	svc.MarkHealthy("local")
	if !svc.IsHealthy("local") || svc.IsInCooldown("local") {
		t.Error("MarkHealthy should clear cooldown")
	}
}

func TestService_CooldownExpires(t *testing.T) {
	svc := NewService(nil, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	svc.RegisterBackend(BackendInfo{Name: "general"})

	svc.SetCooldown("general", 5*time.Minute)
	if svc.IsHealthy("general") {
		t.Error("backend in cooldown should not be healthy")
	}

	now = now.Add(6 * time.Minute)
	if !svc.IsHealthy("general") {
		t.Error("expired cooldown should be healthy again")
	}
}

func TestService_UnknownAndNil(t *testing.T) {
	var nilSvc *Service
	if !nilSvc.IsHealthy("x") || nilSvc.IsInCooldown("x") {
		t.Error("nil service should treat every backend as healthy")
	}
	nilSvc.MarkUnhealthy("x", "boom")

	svc := NewService(nil, 0, 0)
	if !svc.IsHealthy("never-registered") {
		t.Error("unregistered backend should be assumed healthy")
	}
}

func TestService_CheckBackend(t *testing.T) {
	ctx := context.Background()

	svc := NewService(stubPinger{}, 1, time.Minute)
	svc.RegisterBackend(BackendInfo{Name: "general"})
	if err := svc.CheckBackend(ctx, "general"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status := svc.GetStatus()["general"].(map[string]interface{})
	if status["status"] != StatusHealthy {
		t.Errorf("status = %v, want healthy", status["status"])
	}

	failing := NewService(stubPinger{err: errors.New("quota exceeded: slow down")}, 3, time.Minute)
	failing.RegisterBackend(BackendInfo{Name: "general"})
	if err := failing.CheckBackend(ctx, "general"); err == nil {
		t.Fatal("expected ping error")
	}
	if !failing.IsInCooldown("general") {
		t.Error("quota errors should put the backend into cooldown immediately")
	}

	if err := svc.CheckBackend(ctx, "missing"); err == nil {
		t.Error("expected error for unregistered backend")
	}
}

func TestConnectivityPinger(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"not found still reachable", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/models" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewConnectivityPinger().Ping(context.Background(), BackendInfo{Name: "b", BaseURL: server.URL + "/v1/"})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewConnectivityPinger().Ping(context.Background(), BackendInfo{Name: "b"}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestIsQuotaError(t *testing.T) {
	if !IsQuotaError(http.StatusTooManyRequests, "") {
		t.Error("429 should be a quota error")
	}
	if !IsQuotaError(0, "Rate limit reached for requests per minute") {
		t.Error("rate limit text should be a quota error")
	}
	if IsQuotaError(http.StatusInternalServerError, "internal error") {
		t.Error("500 is not a quota error")
	}
	if got := ParseCooldownDuration(0, "insufficient_quota"); got != 24*time.Hour {
		t.Errorf("billing cooldown = %v", got)
	}
	if got := ParseCooldownDuration(http.StatusTooManyRequests, ""); got != 5*time.Minute {
		t.Errorf("rate limit cooldown = %v", got)
	}
}
