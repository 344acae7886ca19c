package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Executor handles communication with the E2B Python sandbox microservice
type Executor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// ExecuteRequest is a code execution request
type ExecuteRequest struct {
	Code         string   `json:"code"`
	Timeout      int      `json:"timeout,omitempty"` // seconds
	Dependencies []string `json:"dependencies,omitempty"`
}

// ExecuteResponse is the result of running code in the sandbox
type ExecuteResponse struct {
	Success       bool     `json:"success"`
	Stdout        string   `json:"stdout"`
	Stderr        string   `json:"stderr"`
	Error         *string  `json:"error"`
	ExecutionTime *float64 `json:"execution_time"`
	InstallOutput string   `json:"install_output"`
}

// NewExecutor creates a client for the sandbox service at baseURL
func NewExecutor(baseURL, apiKey string) *Executor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &Executor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 330 * time.Second, // 5.5 minutes to allow 5 min execution + overhead
		},
		logger: logger,
	}

	e.logger.WithField("baseURL", e.baseURL).Info("E2B executor initialized")
	return e
}

// HealthCheck checks if the E2B service is healthy
func (e *Executor) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	e.setAuth(req)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	e.logger.Debug("E2B service health check passed")
	return nil
}

// Execute runs Python code in a sandbox, installing dependencies first when given
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if req.Timeout == 0 {
		req.Timeout = 30
	}

	endpoint := "/execute"
	if len(req.Dependencies) > 0 {
		endpoint = "/execute-advanced"
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"code_length":  len(req.Code),
		"timeout":      req.Timeout,
		"dependencies": req.Dependencies,
	}).Info("Executing code in E2B sandbox")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	e.setAuth(httpReq)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execution failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result ExecuteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"success":    result.Success,
		"has_stdout": len(result.Stdout) > 0,
		"has_stderr": len(result.Stderr) > 0,
	}).Info("Code execution completed")

	return &result, nil
}

func (e *Executor) setAuth(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("X-E2B-API-Key", e.apiKey)
	}
}
