package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"aitwin/internal/health"
	"aitwin/internal/models"
)

var (
	// ErrToolsUnsupported means the model rejected the tool definitions
	ErrToolsUnsupported = errors.New("model does not support tool calling")
	// ErrBackendUnavailable means the backend is unreachable or misconfigured
	ErrBackendUnavailable = errors.New("model backend unavailable")
)

// CompletionRequest is one chat completion call
type CompletionRequest struct {
	Model    string
	Messages []models.ChatMessage
	Tools    []map[string]interface{} // OpenAI function-tool descriptors; nil for a plain call
}

// ChatBackend produces the next assistant message for a conversation
type ChatBackend interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*models.ChatMessage, error)
}

// ModelBackendConfig describes an OpenAI-compatible /chat/completions endpoint
type ModelBackendConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	RequireAPIKey  bool
	DefaultModel   string
	Temperature    float64
	RequestTimeout time.Duration
}

// ModelBackend talks to an OpenAI-compatible chat completions API
// (Groq in the cloud, Ollama locally).
type ModelBackend struct {
	config     ModelBackendConfig
	httpClient *http.Client
}

// NewModelBackend creates a backend client
func NewModelBackend(cfg ModelBackendConfig) *ModelBackend {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &ModelBackend{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (b *ModelBackend) Name() string {
	return b.config.Name
}

// Info returns what the health checker needs to check this backend
func (b *ModelBackend) Info() health.BackendInfo {
	return health.BackendInfo{Name: b.config.Name, BaseURL: b.config.BaseURL, APIKey: b.config.APIKey}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string            `json:"content"`
			ToolCalls []models.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a non-streaming chat completion request
func (b *ModelBackend) Complete(ctx context.Context, req CompletionRequest) (*models.ChatMessage, error) {
	if b.config.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s has no base URL", ErrBackendUnavailable, b.config.Name)
	}
	if b.config.RequireAPIKey && b.config.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key missing", ErrBackendUnavailable, b.config.Name)
	}

	model := req.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	reqBody := map[string]interface{}{
		"model":       model,
		"messages":    req.Messages,
		"stream":      false,
		"temperature": b.config.Temperature,
	}
	if len(req.Tools) > 0 {
		reqBody["tools"] = req.Tools
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.BaseURL+"/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request failed: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		errorMsg := string(body)

		if len(req.Tools) > 0 && detectToolIncompatibility(errorMsg) {
			log.Printf("🔍 [ERROR DETECTION] Tool incompatibility detected for model: %s", model)
			return nil, fmt.Errorf("%w: %s", ErrToolsUnsupported, errorMsg)
		}
		if health.IsUnavailableStatus(resp.StatusCode) {
			return nil, &BackendError{StatusCode: resp.StatusCode, Body: errorMsg, unavailable: true}
		}
		return nil, &BackendError{StatusCode: resp.StatusCode, Body: errorMsg}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := parsed.Choices[0].Message
	return &models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   message.Content,
		ToolCalls: message.ToolCalls,
	}, nil
}

// BackendError is a non-200 answer from a model backend
type BackendError struct {
	StatusCode  int
	Body        string
	unavailable bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, truncateText(e.Body, 300))
}

// Is lets errors.Is match ErrBackendUnavailable for outage-type statuses
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable && e.unavailable
}

// detectToolIncompatibility checks if an error message indicates tool incompatibility
func detectToolIncompatibility(errorMsg string) bool {
	errorLower := strings.ToLower(errorMsg)

	if strings.Contains(errorLower, "roles must alternate") {
		return true
	}

	patterns := []string{
		"tool",
		"not supported",
		"function calling",
		"unsupported",
		"does not support",
	}

	// Must have both a tool-related keyword AND an error keyword
	hasToolKeyword := false
	hasErrorKeyword := false

	for _, pattern := range patterns {
		if strings.Contains(errorLower, pattern) {
			if pattern == "tool" || pattern == "function calling" {
				hasToolKeyword = true
			} else {
				hasErrorKeyword = true
			}
		}
	}

	return hasToolKeyword && hasErrorKeyword
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
