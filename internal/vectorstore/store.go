package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/liliang-cn/sqvect/v2/pkg/core"
)

// ErrVectorStoreDisabled is returned when no vector service is configured
var ErrVectorStoreDisabled = errors.New("vector store is not configured")

// Record is one stored embedding with its source text and metadata
type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// ScoredRecord is a search hit
type ScoredRecord struct {
	Record
	Score float64
}

// Store is the vector service consumed by long-term memory
type Store interface {
	AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error)
	SimilaritySearchWithScore(ctx context.Context, query string, k int, filter map[string]string) ([]ScoredRecord, error)
}

// VectorStore embeds texts with an Embedder and keeps them in a sqvect SQLite store
type VectorStore struct {
	embedder Embedder
	index    *core.SQLiteStore
}

// OpenIndex opens (or creates) a sqvect store at path. The vector dimension
// is detected from the first insert.
func OpenIndex(ctx context.Context, path string) (*core.SQLiteStore, error) {
	cfg := core.DefaultConfig()
	cfg.Path = path
	cfg.VectorDim = 0
	cfg.HNSW.Enabled = false
	// Scores stay pure cosine so the recall threshold means the same thing across queries
	cfg.TextSimilarity.Enabled = false

	index, err := core.NewWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := index.Init(ctx); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	return index, nil
}

// New creates a vector store. Both collaborators are required.
func New(embedder Embedder, index *core.SQLiteStore) *VectorStore {
	return &VectorStore{embedder: embedder, index: index}
}

// AddTexts embeds and stores texts, returning the generated record IDs.
// metadatas, when given, must have one entry per text.
func (s *VectorStore) AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error) {
	if s == nil || s.embedder == nil || s.index == nil {
		return nil, ErrVectorStoreDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("metadata count %d does not match text count %d", len(metadatas), len(texts))
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	embs := make([]*core.Embedding, len(texts))
	ids := make([]string, len(texts))
	for i, text := range texts {
		ids[i] = uuid.New().String()
		embs[i] = &core.Embedding{
			ID:      ids[i],
			Vector:  vectors[i],
			Content: text,
		}
		if metadatas != nil {
			embs[i].Metadata = metadatas[i]
		}
	}

	if err := s.index.UpsertBatch(ctx, embs); err != nil {
		return nil, fmt.Errorf("failed to store embeddings: %w", err)
	}
	return ids, nil
}

// SimilaritySearchWithScore returns up to k records matching filter, most similar first
func (s *VectorStore) SimilaritySearchWithScore(ctx context.Context, query string, k int, filter map[string]string) ([]ScoredRecord, error) {
	if s == nil || s.embedder == nil || s.index == nil {
		return nil, ErrVectorStoreDisabled
	}
	if k <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d", len(vectors))
	}

	hits, err := s.index.Search(ctx, vectors[0], core.SearchOptions{TopK: k, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]ScoredRecord, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredRecord{
			Record: Record{
				ID:       h.ID,
				Content:  h.Content,
				Vector:   h.Vector,
				Metadata: h.Metadata,
			},
			Score: h.Score,
		})
	}
	return out, nil
}

// Count returns the number of stored records
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.index == nil {
		return 0, ErrVectorStoreDisabled
	}
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return int(stats.Count), nil
}

// Ping checks that the index answers queries
func (s *VectorStore) Ping(ctx context.Context) error {
	_, err := s.Count(ctx)
	return err
}

// Close releases the underlying index
func (s *VectorStore) Close() error {
	if s == nil || s.index == nil {
		return nil
	}
	return s.index.Close()
}
