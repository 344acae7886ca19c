package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"aitwin/internal/logging"
	"aitwin/internal/models"
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// ChatOrchestrator runs the per-query pipeline: classify, serve from cache
// or route to a backend, build context, run the reasoning loop, then cache
// and remember the exchange.
type ChatOrchestrator struct {
	classifier *IntentClassifier
	policies   PolicyTable
	cache      *ResponseCache
	memory     *MemoryManager
	contexts   *ContextBuilder
	loop       *ReasoningLoop
	metrics    *Metrics

	twinName       string
	requestTimeout time.Duration
}

// ChatOrchestratorConfig holds the orchestrator settings
type ChatOrchestratorConfig struct {
	TwinName       string
	RequestTimeout time.Duration
}

// NewChatOrchestrator wires the pipeline stages together
func NewChatOrchestrator(
	classifier *IntentClassifier,
	policies PolicyTable,
	responseCache *ResponseCache,
	memory *MemoryManager,
	loop *ReasoningLoop,
	metrics *Metrics,
	cfg ChatOrchestratorConfig,
) *ChatOrchestrator {
	if cfg.TwinName == "" {
		cfg.TwinName = "the owner"
	}
	return &ChatOrchestrator{
		classifier:     classifier,
		policies:       policies,
		cache:          responseCache,
		memory:         memory,
		contexts:       NewContextBuilder(memory),
		loop:           loop,
		metrics:        metrics,
		twinName:       cfg.TwinName,
		requestTimeout: cfg.RequestTimeout,
	}
}

// Memory exposes the memory manager for stats endpoints
func (o *ChatOrchestrator) Memory() *MemoryManager {
	return o.memory
}

// Handle answers one query for userID
func (o *ChatOrchestrator) Handle(ctx context.Context, userID string, req models.ChatRequest) (*models.ChatResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if o.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	intent := o.classifier.Classify(query)
	policy := o.policies.For(intent)
	logger := logging.WithRequest(uuid.New().String(), userID, intent.String())
	log.Printf("🧠 [INTENT] Detected intent for user %s: %s", userID, intent)

	if policy.Cacheable {
		if entry, ok := o.cache.Get(ctx, userID, intent, query); ok {
			log.Printf("🚀 [CACHE] Cache hit for user %s", userID)
			o.metrics.RecordChatRequest(intent, models.BackendCache)
			o.metrics.RecordChatLatency(time.Since(start).Seconds())
			logger.Info("chat served from cache", "duration_ms", time.Since(start).Milliseconds())
			return &models.ChatResponse{
				Response:  entry.Response,
				Intent:    intent,
				UsedModel: models.BackendCache,
			}, nil
		}
	}

	backend, variant := policy.Backend, policy.Variant
	if req.ModelType != "" {
		backend, variant = req.ModelType, req.AdapterName
	}

	contextBlock := o.contexts.Build(ctx, userID, query)

	result := o.loop.Run(ctx, LoopInput{
		UserID:  userID,
		Query:   query,
		Context: contextBlock,
		Backend: backend,
		Variant: variant,
	})
	if result.Failed() {
		o.metrics.RecordChatError(failureKind(result.Err))
		logger.Warn("reasoning loop failed", "backend", backend, "error", result.Err)
	} else if policy.Cacheable {
		o.cache.Put(ctx, userID, intent, query, result.Response)
	}

	usedModel := result.ServedBy
	if usedModel == "" {
		usedModel = backend
	}

	// the exchange is remembered even if the caller has gone away
	memCtx := context.WithoutCancel(ctx)
	o.memory.AddMessage(memCtx, userID, models.RoleUser, query)
	o.memory.AddMessage(memCtx, userID, models.RoleAssistant, result.Response)

	o.metrics.RecordChatRequest(intent, usedModel)
	o.metrics.RecordChatLatency(time.Since(start).Seconds())
	logger.Info("chat handled",
		"backend", backend,
		"variant", variant,
		"used_model", usedModel,
		"tool_turns", result.ToolTurns,
		"state", result.State.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &models.ChatResponse{
		Response:  result.Response,
		Intent:    intent,
		UsedModel: usedModel,
	}, nil
}

// HandleChannelMessage answers a friend's message on behalf of ownerID.
// The message is stored as friend_<name>, the reply as assistant. Replies
// are never cached.
func (o *ChatOrchestrator) HandleChannelMessage(ctx context.Context, ownerID, senderName, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyQuery
	}
	if senderName == "" {
		senderName = "Friend"
	}

	if o.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.requestTimeout)
		defer cancel()
	}

	logger := logging.WithChannel(logging.WithRequest(uuid.New().String(), ownerID, ""), "telegram", senderName)
	log.Printf("📩 [RELAY] Message from %s for %s", senderName, ownerID)

	memCtx := context.WithoutCancel(ctx)
	o.memory.AddMessage(memCtx, ownerID, FriendRole(senderName), text)

	contextBlock := o.contexts.Build(ctx, ownerID, text)
	persona := fmt.Sprintf("You are the AI Twin of %s. A friend named %s just texted you. Reply exactly how %s would.",
		o.twinName, senderName, o.twinName)

	result := o.loop.Run(ctx, LoopInput{
		UserID:  ownerID,
		Query:   text,
		Context: contextBlock,
		Backend: models.BackendLocal,
		Variant: DefaultLocalAdapter,
		Persona: persona,
	})
	if result.Failed() {
		o.metrics.RecordChatError(failureKind(result.Err))
		logger.Warn("relay reply failed", "error", result.Err)
	}

	o.memory.AddMessage(memCtx, ownerID, models.RoleAssistant, result.Response)
	logger.Info("relay handled", "state", result.State.String(), "tool_turns", result.ToolTurns)

	return result.Response, nil
}

// FriendRole is the memory role under which a friend's message is stored
func FriendRole(senderName string) string {
	return "friend_" + senderName
}

func failureKind(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrToolBudgetExhausted):
		return "tool_budget"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	}
	return "generation"
}
