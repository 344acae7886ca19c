package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ConnectivityPinger hits the backend's /models endpoint
type ConnectivityPinger struct {
	client *http.Client
}

// NewConnectivityPinger creates a pinger with a 15 second timeout
func NewConnectivityPinger() *ConnectivityPinger {
	return &ConnectivityPinger{client: &http.Client{Timeout: 15 * time.Second}}
}

func (p *ConnectivityPinger) Ping(ctx context.Context, backend BackendInfo) (int, error) {
	if backend.BaseURL == "" {
		return 0, fmt.Errorf("backend %s has no base URL configured", backend.Name)
	}

	modelsURL := fmt.Sprintf("%s/models", strings.TrimSuffix(backend.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create connectivity check request: %w", err)
	}

	if backend.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", backend.APIKey))
	}

	startTime := time.Now()

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("connectivity check failed: %w", err)
	}
	defer resp.Body.Close()

	latencyMs := int(time.Since(startTime).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return latencyMs, fmt.Errorf("authentication failed (invalid API key)")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return latencyMs, fmt.Errorf("quota exceeded: %s", string(body))
	}

	// Any 2xx or even 404 (endpoint doesn't exist but server is up) is considered "connected"
	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return latencyMs, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	return latencyMs, nil
}
