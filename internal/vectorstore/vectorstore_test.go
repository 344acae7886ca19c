package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

// keywordEmbedder maps texts to fixed axes by keyword so similarity is predictable
type keywordEmbedder struct {
	calls int
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(t, "dentist") {
			v[0] = 1
		}
		if strings.Contains(t, "pizza") {
			v[1] = 1
		}
		if strings.Contains(t, "rust") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

func openTestStore(t *testing.T, embedder Embedder) *VectorStore {
	t.Helper()
	index, err := OpenIndex(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	store := New(embedder, index)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestVectorStore_SearchFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &keywordEmbedder{})

	_, err := store.AddTexts(ctx,
		[]string{"dentist appointment tomorrow", "pizza for dinner", "alice also has a dentist visit"},
		[]map[string]string{{"user_id": "bob"}, {"user_id": "bob"}, {"user_id": "alice"}},
	)
	if err != nil {
		t.Fatalf("AddTexts failed: %v", err)
	}

	hits, err := store.SimilaritySearchWithScore(ctx, "when is my dentist?", 3, map[string]string{"user_id": "bob"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for bob, got %d", len(hits))
	}
	if hits[0].Content != "dentist appointment tomorrow" {
		t.Errorf("best hit = %q", hits[0].Content)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits must be sorted by descending score")
	}
	for _, h := range hits {
		if h.Metadata["user_id"] != "bob" {
			t.Errorf("hit from another user leaked: %+v", h.Metadata)
		}
	}

	top1, _ := store.SimilaritySearchWithScore(ctx, "dentist", 1, nil)
	if len(top1) != 1 {
		t.Errorf("k=1 should return one hit, got %d", len(top1))
	}

	n, err := store.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v; want 3", n, err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestVectorStore_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	index, err := OpenIndex(ctx, path)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	if _, err := New(&keywordEmbedder{}, index).AddTexts(ctx, []string{"rust meetup on friday"}, nil); err != nil {
		t.Fatalf("AddTexts failed: %v", err)
	}
	index.Close()

	index, err = OpenIndex(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen index: %v", err)
	}
	store := New(&keywordEmbedder{}, index)
	defer store.Close()

	hits, err := store.SimilaritySearchWithScore(ctx, "rust", 5, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "rust meetup on friday" {
		t.Errorf("hits after reopen = %+v", hits)
	}
}

func TestVectorStore_ZeroK(t *testing.T) {
	store := openTestStore(t, &keywordEmbedder{})
	hits, err := store.SimilaritySearchWithScore(context.Background(), "pizza", 0, nil)
	if err != nil || hits != nil {
		t.Errorf("k=0: got %v, %v", hits, err)
	}
}

func TestVectorStore_Disabled(t *testing.T) {
	var store *VectorStore
	if _, err := store.AddTexts(context.Background(), []string{"x"}, nil); !errors.Is(err, ErrVectorStoreDisabled) {
		t.Errorf("got %v", err)
	}
	if _, err := New(nil, nil).SimilaritySearchWithScore(context.Background(), "x", 3, nil); !errors.Is(err, ErrVectorStoreDisabled) {
		t.Errorf("got %v", err)
	}
}

func TestVectorStore_MetadataMismatch(t *testing.T) {
	store := openTestStore(t, &keywordEmbedder{})
	_, err := store.AddTexts(context.Background(), []string{"a", "b"}, []map[string]string{{"user_id": "u"}})
	if err == nil {
		t.Error("expected error for mismatched metadata")
	}
}

func TestHTTPEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "embed-small" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		// Return out of order to check index handling
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL+"/", "secret", "embed-small")
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestHTTPEmbedder_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := NewHTTPEmbedder(server.URL, "", "m").Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error on non-200 response")
	}
}
