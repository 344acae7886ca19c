package models

// Message roles understood by OpenAI-compatible chat backends
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Backend names. "general" is the fast cloud model, "local" the self-hosted one.
const (
	BackendGeneral = "general"
	BackendLocal   = "local"
	BackendCache   = "cache"
)

// ChatMessage is one entry of a reasoning-loop message sequence
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a structured tool invocation requested by the model
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the tool name and its raw JSON arguments
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Query       string `json:"query"`
	ModelType   string `json:"model_type,omitempty"`   // optional backend override
	AdapterName string `json:"adapter_name,omitempty"` // optional variant override
}

// ChatResponse is returned for every handled query
type ChatResponse struct {
	Response  string `json:"response"`
	Intent    Intent `json:"intent"`
	UsedModel string `json:"used_model"`
}
