package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aitwin/internal/config"
	"aitwin/internal/models"
	"aitwin/internal/vectorstore"
)

type orchestratorFixture struct {
	orchestrator *ChatOrchestrator
	general      *fakeBackend
	local        *fakeBackend
	memory       *MemoryManager
}

func newOrchestratorFixture(t *testing.T, general, local *fakeBackend) *orchestratorFixture {
	t.Helper()
	policies := DefaultPolicyTable()
	memory := NewMemoryManager(nil, NewInMemoryShortTermStore(10, 0), nil)
	router := NewBackendRouter(asBackend(general), asBackend(local), nil, "", nil)
	loop := NewReasoningLoop(router, nil, nil, ReasoningLoopConfig{TwinName: "Sam"})

	orchestrator := NewChatOrchestrator(
		NewIntentClassifier(config.DefaultIntentKeywords()),
		policies,
		NewResponseCache(NewLocalKVStore(), policies, nil),
		memory,
		loop,
		nil,
		ChatOrchestratorConfig{TwinName: "Sam", RequestTimeout: 5 * time.Second},
	)
	return &orchestratorFixture{orchestrator: orchestrator, general: general, local: local, memory: memory}
}

func asBackend(b *fakeBackend) ChatBackend {
	if b == nil {
		return nil
	}
	return b
}

func counting(prefix string) func(int, CompletionRequest) (*models.ChatMessage, error) {
	return func(n int, req CompletionRequest) (*models.ChatMessage, error) {
		return &models.ChatMessage{Role: models.RoleAssistant, Content: fmt.Sprintf("%s answer %d", prefix, n)}, nil
	}
}

func TestChatOrchestrator_FactualCachedAfterFirstAnswer(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, &fakeBackend{name: "ollama", respond: counting("local")})
	ctx := context.Background()

	first, err := fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "Who is the president of France?"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if first.Intent != models.IntentFactual || first.UsedModel != models.BackendGeneral || first.Response != "cloud answer 1" {
		t.Fatalf("Unexpected first response %+v", first)
	}

	second, err := fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "  who is the president of france?  "})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if second.UsedModel != models.BackendCache || second.Response != "cloud answer 1" {
		t.Errorf("Expected cached answer, got %+v", second)
	}
	if n := len(fx.general.calls()); n != 1 {
		t.Errorf("Expected a single backend invocation, got %d", n)
	}

	other, _ := fx.orchestrator.Handle(ctx, "bob", models.ChatRequest{Query: "Who is the president of France?"})
	if other.UsedModel == models.BackendCache {
		t.Error("Expected cache entries to be scoped per user")
	}
}

func TestChatOrchestrator_PersonalRoutesLocalAndSkipsCache(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, &fakeBackend{name: "ollama", respond: counting("local")})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "remind me of my plan for today"})
		if err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
		if resp.Intent != models.IntentPersonal || resp.UsedModel != models.BackendLocal {
			t.Errorf("Unexpected response %+v", resp)
		}
	}

	calls := fx.local.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected personal queries never to be served from cache, got %d calls", len(calls))
	}
	if calls[0].Model != DefaultLocalAdapter {
		t.Errorf("Expected default adapter %s, got %q", DefaultLocalAdapter, calls[0].Model)
	}
	if len(fx.general.calls()) != 0 {
		t.Error("Expected the cloud backend to be unused")
	}
}

func TestChatOrchestrator_RequestOverride(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, &fakeBackend{name: "ollama", respond: counting("local")})

	resp, err := fx.orchestrator.Handle(context.Background(), "alice", models.ChatRequest{
		Query:       "fix this python bug",
		ModelType:   models.BackendLocal,
		AdapterName: "coder-lora",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Intent != models.IntentCoding || resp.UsedModel != models.BackendLocal {
		t.Errorf("Unexpected response %+v", resp)
	}
	if calls := fx.local.calls(); len(calls) != 1 || calls[0].Model != "coder-lora" {
		t.Errorf("Expected override adapter to be requested, got %+v", calls)
	}
}

func TestChatOrchestrator_FailureNotCachedButRemembered(t *testing.T) {
	down := &fakeBackend{name: "groq", respond: func(int, CompletionRequest) (*models.ChatMessage, error) {
		return nil, fmt.Errorf("%w: connection refused", ErrBackendUnavailable)
	}}
	fx := newOrchestratorFixture(t, down, &fakeBackend{name: "ollama", respond: counting("local")})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "what is the weather in Paris"})
		if err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
		if resp.Response != FailureResponse || resp.UsedModel != models.BackendGeneral {
			t.Errorf("Expected apology from general backend, got %+v", resp)
		}
	}
	if n := len(down.calls()); n != 2 {
		t.Errorf("Expected failed answers never to be cached, got %d calls", n)
	}

	history := fx.memory.Recent(ctx, "alice")
	if len(history) != 4 || history[1].Content != FailureResponse {
		t.Errorf("Expected both exchanges remembered, got %+v", history)
	}
}

func TestChatOrchestrator_RemembersExchangeInOrder(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, &fakeBackend{name: "ollama", respond: counting("local")})
	ctx := context.Background()

	if _, err := fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "hey, how are you?"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	history := fx.memory.Recent(ctx, "alice")
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "hey, how are you?" {
		t.Errorf("Unexpected first entry %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != "local answer 1" {
		t.Errorf("Unexpected second entry %+v", history[1])
	}
}

func TestChatOrchestrator_ContextIncludesPriorTurns(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, &fakeBackend{name: "ollama", respond: counting("local")})
	ctx := context.Background()

	_, _ = fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "hey there"})
	_, _ = fx.orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "tell me a joke"})

	system := fx.local.calls()[1].Messages[0].Content
	if !strings.Contains(system, "[CURRENT CONVERSATION]\nUSER: hey there\nASSISTANT: local answer 1") {
		t.Errorf("Expected previous turn in context, got %q", system)
	}
}

func TestChatOrchestrator_EmptyQuery(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, nil)

	if _, err := fx.orchestrator.Handle(context.Background(), "alice", models.ChatRequest{Query: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestChatOrchestrator_HandleChannelMessage(t *testing.T) {
	local := &fakeBackend{name: "ollama", respond: counting("local")}
	fx := newOrchestratorFixture(t, &fakeBackend{name: "groq", respond: counting("cloud")}, local)
	ctx := context.Background()

	reply, err := fx.orchestrator.HandleChannelMessage(ctx, "owner", "Bob", "are we still on for dinner?")
	if err != nil {
		t.Fatalf("HandleChannelMessage failed: %v", err)
	}
	if reply != "local answer 1" {
		t.Errorf("Unexpected reply %q", reply)
	}

	req := local.calls()[0]
	if req.Model != DefaultLocalAdapter {
		t.Errorf("Expected local adapter, got %q", req.Model)
	}
	system := req.Messages[0].Content
	if !strings.HasPrefix(system, "You are the AI Twin of Sam. A friend named Bob just texted you. Reply exactly how Sam would.") {
		t.Errorf("Unexpected persona %q", system)
	}
	if !strings.Contains(system, "FRIEND_BOB: are we still on for dinner?") {
		t.Errorf("Expected the friend's message in context, got %q", system)
	}

	history := fx.memory.Recent(ctx, "owner")
	if len(history) != 2 || history[0].Role != "friend_Bob" || history[1].Role != models.RoleAssistant {
		t.Errorf("Unexpected owner history %+v", history)
	}

	if _, err := fx.orchestrator.HandleChannelMessage(ctx, "owner", "Bob", "are we still on for dinner?"); err != nil {
		t.Fatalf("HandleChannelMessage failed: %v", err)
	}
	if len(local.calls()) != 2 {
		t.Error("Expected relay replies never to be cached")
	}
}

func TestFailureKind(t *testing.T) {
	tests := map[string]error{
		"unknown":             nil,
		"timeout":             fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
		"tool_budget":         fmt.Errorf("%w after 5 turns", ErrToolBudgetExhausted),
		"backend_unavailable": fmt.Errorf("%w: down", ErrBackendUnavailable),
		"generation":          errors.New("no choices in response"),
	}
	for want, err := range tests {
		if got := failureKind(err); got != want {
			t.Errorf("failureKind(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestChatOrchestrator_UnknownModelTypeReportsServingBackend(t *testing.T) {
	general := &fakeBackend{name: models.BackendGeneral, respond: counting("cloud")}
	local := &fakeBackend{name: models.BackendLocal, respond: counting("local")}
	policies := DefaultPolicyTable()
	router := NewBackendRouter(general, local, general, "llama-3.1-70b-versatile", nil)
	orchestrator := NewChatOrchestrator(
		NewIntentClassifier(config.DefaultIntentKeywords()),
		policies,
		NewResponseCache(NewLocalKVStore(), policies, nil),
		NewMemoryManager(nil, NewInMemoryShortTermStore(10, 0), nil),
		NewReasoningLoop(router, nil, nil, ReasoningLoopConfig{TwinName: "Sam"}),
		nil,
		ChatOrchestratorConfig{TwinName: "Sam"},
	)

	resp, err := orchestrator.Handle(context.Background(), "alice", models.ChatRequest{
		Query:     "hey, how are you?",
		ModelType: "gpt-9000",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.UsedModel != models.BackendGeneral {
		t.Errorf("UsedModel = %q, want %q (the backend that answered)", resp.UsedModel, models.BackendGeneral)
	}
	if resp.Response != "cloud answer 1" {
		t.Errorf("Unexpected response %q", resp.Response)
	}
	if calls := general.calls(); len(calls) != 1 || calls[0].Model != "llama-3.1-70b-versatile" {
		t.Errorf("Expected the fallback route to serve, got %+v", calls)
	}
	if len(local.calls()) != 0 {
		t.Error("Expected the local backend to be unused")
	}
}

// axisEmbedder puts every text mentioning a keyword on that keyword's axis
type axisEmbedder struct {
	axes []string
}

func (e axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		text = strings.ToLower(text)
		v := make([]float32, len(e.axes)+1)
		v[len(e.axes)] = 0.01
		for j, axis := range e.axes {
			if strings.Contains(text, axis) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func TestChatOrchestrator_PersonalRecallAcrossTurns(t *testing.T) {
	ctx := context.Background()
	index, err := vectorstore.OpenIndex(ctx, filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("failed to open vector index: %v", err)
	}
	vectors := vectorstore.New(axisEmbedder{axes: []string{"tomorrow", "pizza"}}, index)
	t.Cleanup(func() { vectors.Close() })

	local := &fakeBackend{name: models.BackendLocal, respond: counting("local")}
	policies := DefaultPolicyTable()
	kv := NewLocalKVStore()
	memory := NewMemoryManager(nil, NewInMemoryShortTermStore(10, 0), NewLongTermMemory(vectors, DefaultLongTermConfig()))
	orchestrator := NewChatOrchestrator(
		NewIntentClassifier(config.DefaultIntentKeywords()),
		policies,
		NewResponseCache(kv, policies, nil),
		memory,
		NewReasoningLoop(NewBackendRouter(nil, local, nil, "", nil), nil, nil, ReasoningLoopConfig{TwinName: "Sam"}),
		nil,
		ChatOrchestratorConfig{TwinName: "Sam"},
	)

	first, err := orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "remember my plan for tomorrow"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	second, err := orchestrator.Handle(ctx, "alice", models.ChatRequest{Query: "what did I say about tomorrow"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	for _, resp := range []*models.ChatResponse{first, second} {
		if resp.Intent != models.IntentPersonal || resp.UsedModel != models.BackendLocal {
			t.Errorf("Unexpected response %+v", resp)
		}
	}
	if kv.ItemCount() != 0 {
		t.Errorf("Personal answers must never be cached, store holds %d entries", kv.ItemCount())
	}

	calls := local.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 backend calls, got %d", len(calls))
	}
	system := calls[1].Messages[0].Content
	recalled := strings.SplitN(system, "[CURRENT CONVERSATION]", 2)[0]
	if !strings.Contains(recalled, "- remember my plan for tomorrow") {
		t.Errorf("Expected the earlier message among recalled memories, got %q", system)
	}

	// another user's memories stay out of alice's context
	if _, err := orchestrator.Handle(ctx, "bob", models.ChatRequest{Query: "what did I say about tomorrow"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	bobSystem := local.calls()[2].Messages[0].Content
	if strings.Contains(bobSystem, "remember my plan for tomorrow") {
		t.Errorf("Expected bob's context to exclude alice's memories, got %q", bobSystem)
	}
}
