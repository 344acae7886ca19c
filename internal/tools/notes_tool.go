package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aitwin/internal/models"
	"aitwin/internal/vectorstore"
)

const notesResultLimit = 5

// NotesSearcher searches a user's long-term memories without a score threshold
type NotesSearcher interface {
	Search(ctx context.Context, userID, query string, k int) ([]models.LongTermRecord, error)
}

// NewNotesTool creates the search_my_notes tool
func NewNotesTool(searcher NotesSearcher) *Tool {
	return &Tool{
		Name:        "search_my_notes",
		DisplayName: "Search My Notes",
		Description: "Search the owner's own long-term memories and past conversations for facts, preferences or earlier discussions",
		Category:    "memory",
		Keywords:    []string{"notes", "memory", "remember", "past", "history", "earlier"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for in past notes",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return searchNotes(ctx, searcher, args)
		},
	}
}

func searchNotes(ctx context.Context, searcher NotesSearcher, args map[string]interface{}) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query parameter is required and must be a string")
	}

	userID := userIDFromArgs(args)
	if userID == "" {
		return "", fmt.Errorf("no user in tool context")
	}

	records, err := searcher.Search(ctx, userID, strings.TrimSpace(query), notesResultLimit)
	if err != nil {
		if errors.Is(err, vectorstore.ErrVectorStoreDisabled) {
			return "Memory store unavailable.", nil
		}
		return "", fmt.Errorf("notes search failed: %w", err)
	}
	if len(records) == 0 {
		return "No matching notes found.", nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}
	return strings.Join(texts, "\n---\n"), nil
}
