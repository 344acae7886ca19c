package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aitwin/internal/models"
	"aitwin/internal/vectorstore"
)

// LongTermConfig tunes long-term memory
type LongTermConfig struct {
	MinWords  int     // texts with this many words or fewer are not remembered
	Threshold float64 // minimum cosine similarity for Recall
	K         int     // default number of results for Recall
}

// DefaultLongTermConfig returns MinWords=3, Threshold=0.75, K=3
func DefaultLongTermConfig() LongTermConfig {
	return LongTermConfig{MinWords: 3, Threshold: 0.75, K: 3}
}

// LongTermMemory stores substantive messages as embeddings and recalls the
// ones most similar to a query. Every read is scoped to a single user.
type LongTermMemory struct {
	store  vectorstore.Store
	config LongTermConfig
	now    func() time.Time
}

// NewLongTermMemory creates long-term memory over store. A nil store disables it.
func NewLongTermMemory(store vectorstore.Store, cfg LongTermConfig) *LongTermMemory {
	if cfg.K <= 0 {
		cfg.K = 3
	}
	return &LongTermMemory{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// Enabled reports whether a vector store is configured
func (m *LongTermMemory) Enabled() bool {
	return m != nil && m.store != nil
}

// Remember embeds and stores text when it has more than MinWords words.
// backRef is the permanent-log id of the message and may be empty.
func (m *LongTermMemory) Remember(ctx context.Context, userID, text, backRef string) error {
	if !m.Enabled() {
		return nil
	}
	if len(strings.Fields(text)) <= m.config.MinWords {
		return nil
	}

	metadata := map[string]string{
		models.MetaUserID:    userID,
		models.MetaMemoryID:  backRef,
		models.MetaTimestamp: m.now().UTC().Format(time.RFC3339),
		models.MetaType:      models.MemoryTypeChatLog,
	}
	if _, err := m.store.AddTexts(ctx, []string{text}, []map[string]string{metadata}); err != nil {
		return fmt.Errorf("failed to store long-term memory: %w", err)
	}
	return nil
}

// Recall returns up to k remembered texts of userID scoring at least the
// threshold, best first. Store failures yield an empty result.
func (m *LongTermMemory) Recall(ctx context.Context, userID, query string, k int) []models.LongTermRecord {
	records, err := m.search(ctx, userID, query, k)
	if err != nil {
		if !errors.Is(err, vectorstore.ErrVectorStoreDisabled) {
			log.Printf("⚠️  [MEMORY] Long-term recall failed for user %s: %v", userID, err)
		}
		return nil
	}

	relevant := records[:0]
	for _, rec := range records {
		if rec.Score >= m.config.Threshold {
			relevant = append(relevant, rec)
		}
	}
	return relevant
}

// Search is Recall without the similarity threshold
func (m *LongTermMemory) Search(ctx context.Context, userID, query string, k int) ([]models.LongTermRecord, error) {
	return m.search(ctx, userID, query, k)
}

func (m *LongTermMemory) search(ctx context.Context, userID, query string, k int) ([]models.LongTermRecord, error) {
	if !m.Enabled() {
		return nil, vectorstore.ErrVectorStoreDisabled
	}
	if k <= 0 {
		k = m.config.K
	}

	hits, err := m.store.SimilaritySearchWithScore(ctx, query, k, map[string]string{models.MetaUserID: userID})
	if err != nil {
		return nil, err
	}

	records := make([]models.LongTermRecord, 0, len(hits))
	for _, hit := range hits {
		// the filter is enforced by the store; double-check tenancy here
		if hit.Metadata[models.MetaUserID] != userID {
			continue
		}
		records = append(records, models.LongTermRecord{
			ID:       hit.ID,
			Text:     hit.Content,
			Metadata: hit.Metadata,
			Score:    hit.Score,
		})
	}
	return records, nil
}

type recordCounter interface {
	Count(ctx context.Context) (int, error)
}

// Count returns the number of stored memories across all users
func (m *LongTermMemory) Count(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, vectorstore.ErrVectorStoreDisabled
	}
	counter, ok := m.store.(recordCounter)
	if !ok {
		return 0, errors.New("vector store does not support counting")
	}
	return counter.Count(ctx)
}
