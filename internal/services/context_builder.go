package services

import (
	"context"
	"strings"

	"aitwin/internal/models"
)

const (
	pastMemoriesHeader        = "[RELEVANT PAST MEMORIES]"
	currentConversationHeader = "[CURRENT CONVERSATION]"
	noPastMemories            = "No relevant past memories found."
)

// ContextBuilder renders recalled memories and recent history into the
// text block placed in the system prompt.
type ContextBuilder struct {
	memory *MemoryManager
}

// NewContextBuilder creates a builder reading from memory
func NewContextBuilder(memory *MemoryManager) *ContextBuilder {
	return &ContextBuilder{memory: memory}
}

// Build returns the context block for query. It never fails; unavailable
// tiers render as empty sections.
func (b *ContextBuilder) Build(ctx context.Context, userID, query string) string {
	recalled := b.memory.Recall(ctx, userID, query)
	history := b.memory.Recent(ctx, userID)
	return FormatContext(recalled, history)
}

// FormatContext renders the two labeled sections
func FormatContext(recalled []models.LongTermRecord, history []models.ShortTermRecord) string {
	var sb strings.Builder

	sb.WriteString(pastMemoriesHeader)
	sb.WriteString("\n")
	if len(recalled) == 0 {
		sb.WriteString(noPastMemories)
		sb.WriteString("\n")
	}
	for _, rec := range recalled {
		sb.WriteString("- ")
		sb.WriteString(rec.Text)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(currentConversationHeader)
	sb.WriteString("\n")
	for _, rec := range history {
		sb.WriteString(strings.ToUpper(rec.Role))
		sb.WriteString(": ")
		sb.WriteString(rec.Content)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
