package services

import (
	"context"
	"log"

	"aitwin/internal/database"
	"aitwin/internal/models"
)

// MemoryManager fans a message out to the permanent log, the short-term
// buffer and long-term memory, and serves reads from the latter two.
// Each tier is optional and failures in one tier do not block the others.
type MemoryManager struct {
	messageLog database.MessageLog
	shortTerm  ShortTermStore
	longTerm   *LongTermMemory
	recallK    int
}

// NewMemoryManager wires the memory tiers. Any of them may be nil.
func NewMemoryManager(messageLog database.MessageLog, shortTerm ShortTermStore, longTerm *LongTermMemory) *MemoryManager {
	k := 3
	if longTerm != nil && longTerm.config.K > 0 {
		k = longTerm.config.K
	}
	return &MemoryManager{
		messageLog: messageLog,
		shortTerm:  shortTerm,
		longTerm:   longTerm,
		recallK:    k,
	}
}

// AddMessage records one message in every configured tier.
// A failed log write leaves the long-term back-reference empty.
func (m *MemoryManager) AddMessage(ctx context.Context, userID, role, text string) {
	var memoryID string
	if m.messageLog != nil {
		id, err := m.messageLog.RecordMessage(ctx, userID, role, text)
		if err != nil {
			log.Printf("⚠️  [MEMORY] Permanent log write failed for user %s: %v", userID, err)
		} else {
			memoryID = id
		}
	}

	if m.shortTerm != nil {
		if err := m.shortTerm.Append(ctx, userID, role, text); err != nil {
			log.Printf("⚠️  [MEMORY] Short-term append failed for user %s: %v", userID, err)
		}
	}

	if err := m.longTerm.Remember(ctx, userID, text, memoryID); err != nil {
		log.Printf("⚠️  [MEMORY] Long-term write failed for user %s: %v", userID, err)
	}
}

// Recent returns the user's short-term history, oldest first
func (m *MemoryManager) Recent(ctx context.Context, userID string) []models.ShortTermRecord {
	if m.shortTerm == nil {
		return nil
	}
	records, err := m.shortTerm.Recent(ctx, userID)
	if err != nil {
		log.Printf("⚠️  [MEMORY] Short-term read failed for user %s: %v", userID, err)
		return nil
	}
	return records
}

// Recall returns the user's long-term memories relevant to query
func (m *MemoryManager) Recall(ctx context.Context, userID, query string) []models.LongTermRecord {
	return m.longTerm.Recall(ctx, userID, query, m.recallK)
}

// LongTerm exposes long-term memory for tools that search it directly
func (m *MemoryManager) LongTerm() *LongTermMemory {
	return m.longTerm
}

// MemoryStats summarizes what is stored
type MemoryStats struct {
	LongTermEnabled bool  `json:"long_term_enabled"`
	LongTermCount   int   `json:"long_term_count"`
	ShortTermCount  int   `json:"short_term_count"`
	LoggedMessages  int64 `json:"logged_messages"`
}

// Stats reports memory counts. LongTermCount covers every user; the other
// counts are for userID.
func (m *MemoryManager) Stats(ctx context.Context, userID string) MemoryStats {
	stats := MemoryStats{
		LongTermEnabled: m.longTerm.Enabled(),
		ShortTermCount:  len(m.Recent(ctx, userID)),
	}

	if stats.LongTermEnabled {
		if n, err := m.longTerm.Count(ctx); err != nil {
			log.Printf("⚠️  [MEMORY] Failed to count long-term memories: %v", err)
		} else {
			stats.LongTermCount = n
		}
	}

	if m.messageLog != nil {
		if n, err := m.messageLog.CountMessages(ctx, userID); err != nil {
			log.Printf("⚠️  [MEMORY] Failed to count logged messages: %v", err)
		} else {
			stats.LoggedMessages = n
		}
	}
	return stats
}
