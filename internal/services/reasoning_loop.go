package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"aitwin/internal/models"
)

// FailureResponse is returned to the user whenever the loop ends in FAILED
const FailureResponse = "Sorry, something went wrong while generating the response."

// ErrToolBudgetExhausted means the model kept requesting tools past the turn cap
var ErrToolBudgetExhausted = errors.New("tool turn budget exhausted")

// UserIDArgKey carries the requesting user into tool arguments
const UserIDArgKey = "__user_id__"

// LoopState is a state of the reasoning loop
type LoopState int

const (
	StateStart LoopState = iota
	StateAgentTurn
	StateToolsTurn
	StateDone
	StateFailed
)

func (s LoopState) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAgentTurn:
		return "AGENT_TURN"
	case StateToolsTurn:
		return "TOOLS_TURN"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// AgentState is an immutable snapshot of the conversation being reasoned over
type AgentState struct {
	Messages []models.ChatMessage
	Backend  string
	Variant  string
}

// with returns a new snapshot with msgs appended; the receiver is untouched
func (s AgentState) with(msgs ...models.ChatMessage) AgentState {
	next := make([]models.ChatMessage, 0, len(s.Messages)+len(msgs))
	next = append(next, s.Messages...)
	next = append(next, msgs...)
	return AgentState{Messages: next, Backend: s.Backend, Variant: s.Variant}
}

// ToolExecutor is the tool registry as seen by the loop
type ToolExecutor interface {
	List() []map[string]interface{}
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// LoopInput is everything one run of the loop needs
type LoopInput struct {
	UserID  string
	Query   string
	Context string // rendered memory block
	History []models.ShortTermRecord
	Backend string
	Variant string
	Persona string // overrides the default persona line when set
}

// LoopResult is the outcome of one run
type LoopResult struct {
	Response  string
	State     LoopState
	Err       error
	ToolTurns int
	Messages  []models.ChatMessage
	ServedBy  string // backend that produced the last reply; empty if none was reached
}

// Failed reports whether the loop ended in FAILED
func (r LoopResult) Failed() bool {
	return r.State == StateFailed
}

// ReasoningLoopConfig tunes the loop
type ReasoningLoopConfig struct {
	MaxToolTurns   int
	TwinName       string
	ToolFanout     int
	NoToolsMemoTTL time.Duration
}

// ReasoningLoop drives a model through alternating agent and tool turns
// until it produces a final answer, falling back across backends when
// the selected one cannot serve.
type ReasoningLoop struct {
	router  *BackendRouter
	tools   ToolExecutor
	metrics *Metrics
	config  ReasoningLoopConfig

	// routes that rejected tool definitions are called plain for a while
	noToolRoutes *cache.Cache
}

// NewReasoningLoop creates a loop. tools may be nil.
func NewReasoningLoop(router *BackendRouter, tools ToolExecutor, metrics *Metrics, cfg ReasoningLoopConfig) *ReasoningLoop {
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = 5
	}
	if cfg.ToolFanout <= 0 {
		cfg.ToolFanout = 4
	}
	if cfg.NoToolsMemoTTL <= 0 {
		cfg.NoToolsMemoTTL = time.Hour
	}
	if cfg.TwinName == "" {
		cfg.TwinName = "the owner"
	}
	return &ReasoningLoop{
		router:       router,
		tools:        tools,
		metrics:      metrics,
		config:       cfg,
		noToolRoutes: cache.New(cfg.NoToolsMemoTTL, 10*time.Minute),
	}
}

// Run executes the loop. It never returns an error: every failure ends in
// the FAILED state with FailureResponse as the response text.
func (l *ReasoningLoop) Run(ctx context.Context, in LoopInput) (result LoopResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [LOOP] Panic recovered for user %s: %v\n%s", in.UserID, r, debug.Stack())
			result = LoopResult{
				Response: FailureResponse,
				State:    StateFailed,
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()

	loopState := StateStart
	var (
		agent     AgentState
		reply     *models.ChatMessage
		route     BackendRoute
		toolTurns int
		err       error
	)

	for {
		switch loopState {
		case StateStart:
			agent = l.initialState(in)
			loopState = StateAgentTurn

		case StateAgentTurn:
			log.Printf("🔧 [LOOP] Agent turn %d for user %s (backend=%s)", toolTurns+1, in.UserID, agent.Backend)
			reply, route, err = l.agentTurn(ctx, agent)
			if err != nil {
				loopState = StateFailed
				continue
			}
			agent = agent.with(*reply)

			if len(reply.ToolCalls) == 0 {
				loopState = StateDone
				continue
			}
			if toolTurns >= l.config.MaxToolTurns {
				err = fmt.Errorf("%w after %d turns", ErrToolBudgetExhausted, toolTurns)
				loopState = StateFailed
				continue
			}
			loopState = StateToolsTurn

		case StateToolsTurn:
			log.Printf("🔧 [LOOP] Model requested %d tool call(s)", len(reply.ToolCalls))
			agent = agent.with(l.runTools(ctx, in.UserID, reply.ToolCalls)...)
			toolTurns++
			loopState = StateAgentTurn

		case StateDone:
			log.Printf("📡 [LOOP] Final response for user %s: %d chars after %d tool turn(s)", in.UserID, len(reply.Content), toolTurns)
			return LoopResult{
				Response:  reply.Content,
				State:     StateDone,
				ToolTurns: toolTurns,
				Messages:  agent.Messages,
				ServedBy:  route.Name(),
			}

		case StateFailed:
			log.Printf("❌ [LOOP] Generation failed for user %s: %v", in.UserID, err)
			return LoopResult{
				Response:  FailureResponse,
				State:     StateFailed,
				Err:       err,
				ToolTurns: toolTurns,
				Messages:  agent.Messages,
				ServedBy:  route.Name(),
			}
		}
	}
}

func (l *ReasoningLoop) initialState(in LoopInput) AgentState {
	msgs := []models.ChatMessage{{Role: models.RoleSystem, Content: l.systemPrompt(in)}}

	for _, rec := range in.History {
		switch rec.Role {
		case models.RoleUser, models.RoleAssistant:
			msgs = append(msgs, models.ChatMessage{Role: rec.Role, Content: rec.Content})
		}
	}

	msgs = append(msgs, models.ChatMessage{Role: models.RoleUser, Content: in.Query})
	return AgentState{Messages: msgs, Backend: in.Backend, Variant: in.Variant}
}

func (l *ReasoningLoop) systemPrompt(in LoopInput) string {
	persona := in.Persona
	if persona == "" {
		persona = fmt.Sprintf("You are the AI Twin of %s.", l.config.TwinName)
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n[YOUR BRAIN / CONTEXT]\n")
	sb.WriteString(in.Context)
	sb.WriteString("\n\n[RULES]\n")
	sb.WriteString("1. Use the [RELEVANT PAST MEMORIES] section when available.\n")
	sb.WriteString("2. Prioritize the current conversation for coding questions.\n")
	sb.WriteString("3. Use tools only when external data is required.\n")
	sb.WriteString("4. Be direct, technical, and concise.\n")

	if in.Backend == models.BackendLocal && in.Variant != "" {
		sb.WriteString(fmt.Sprintf("\n(SYSTEM NOTE: Running local adapter: %s)", in.Variant))
	}
	return sb.String()
}

// agentTurn asks the selected backend for the next message, falling back
// to the secondary backend when the selected one is unavailable. The
// returned route is the one that answered, or the last one tried.
func (l *ReasoningLoop) agentTurn(ctx context.Context, state AgentState) (*models.ChatMessage, BackendRoute, error) {
	route := l.router.Resolve(state.Backend, state.Variant)

	if l.router.Usable(route) {
		msg, err := l.invoke(ctx, route, state.Messages)
		if err == nil {
			return msg, route, nil
		}
		if ctx.Err() != nil || !errors.Is(err, ErrBackendUnavailable) {
			return nil, route, err
		}
		log.Printf("⚠️  [LOOP] Backend %s unavailable: %v", route.Backend.Name(), err)
	} else if route.Backend != nil {
		log.Printf("⚠️  [LOOP] Backend %s is in cooldown, skipping", route.Backend.Name())
	}

	fallback, ok := l.router.Fallback()
	if !ok {
		return nil, route, fmt.Errorf("%w: no fallback configured", ErrBackendUnavailable)
	}
	if route.Backend != nil {
		l.metrics.RecordFallback(route.Backend.Name())
	}
	log.Printf("🔁 [LOOP] Falling back to %s (model=%s)", fallback.Backend.Name(), fallback.Model)
	msg, err := l.invoke(ctx, fallback, state.Messages)
	return msg, fallback, err
}

// invoke calls a route with tools, retrying plain when the call fails for
// any reason other than the backend being unavailable.
func (l *ReasoningLoop) invoke(ctx context.Context, route BackendRoute, messages []models.ChatMessage) (*models.ChatMessage, error) {
	var toolDefs []map[string]interface{}
	if l.tools != nil {
		toolDefs = l.tools.List()
	}

	if _, noTools := l.noToolRoutes.Get(route.Key()); len(toolDefs) > 0 && !noTools {
		msg, err := route.Backend.Complete(ctx, CompletionRequest{Model: route.Model, Messages: messages, Tools: toolDefs})
		if err == nil {
			l.router.ReportSuccess(route)
			return msg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrBackendUnavailable) {
			l.router.ReportFailure(route, err)
			return nil, err
		}
		if errors.Is(err, ErrToolsUnsupported) {
			l.noToolRoutes.Set(route.Key(), true, cache.DefaultExpiration)
		}
		log.Printf("🔄 [LOOP] Tool call failed on %s (%v), retrying without tools", route.Key(), err)
	}

	msg, err := route.Backend.Complete(ctx, CompletionRequest{Model: route.Model, Messages: messages})
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			l.router.ReportFailure(route, err)
		}
		return nil, err
	}
	l.router.ReportSuccess(route)
	return msg, nil
}

// runTools executes every call concurrently and returns one tool message
// per call, in request order.
func (l *ReasoningLoop) runTools(ctx context.Context, userID string, calls []models.ToolCall) []models.ChatMessage {
	results := make([]models.ChatMessage, len(calls))

	var g errgroup.Group
	g.SetLimit(l.config.ToolFanout)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = models.ChatMessage{
				Role:       models.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			}
			// calls still queued behind the fanout limit are skipped once the request is gone
			if err := ctx.Err(); err != nil {
				results[i].Content = fmt.Sprintf("Error: %v", err)
				return err
			}
			results[i].Content = l.executeTool(ctx, userID, call)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("⚠️  [TOOLS] Tool batch for user %s cut short: %v", userID, err)
	}

	return results
}

func (l *ReasoningLoop) executeTool(ctx context.Context, userID string, call models.ToolCall) (result string) {
	name := call.Function.Name
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [TOOLS] Tool %s panicked: %v", name, r)
			result = fmt.Sprintf("Error: tool %s failed", name)
			l.metrics.RecordToolCall(name, true)
		}
	}()

	if l.tools == nil {
		l.metrics.RecordToolCall(name, true)
		return fmt.Sprintf("Error: tool not found: %s", name)
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(call.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			log.Printf("❌ [TOOLS] Failed to parse tool arguments for %s: %v", name, err)
			l.metrics.RecordToolCall(name, true)
			return fmt.Sprintf("Error: invalid arguments: %v", err)
		}
	}
	args[UserIDArgKey] = userID

	log.Printf("🔧 [TOOLS] Executing tool: %s", name)
	out, err := l.tools.Execute(ctx, name, args)
	if err != nil {
		log.Printf("❌ [TOOLS] Tool %s failed: %v", name, err)
		l.metrics.RecordToolCall(name, true)
		return fmt.Sprintf("Error: %v", err)
	}

	log.Printf("✅ [TOOLS] Tool %s executed, result length: %d", name, len(out))
	l.metrics.RecordToolCall(name, false)
	return out
}
