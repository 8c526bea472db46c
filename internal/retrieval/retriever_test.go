package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/halverson/skald/internal/vector"
)

type mockEmbedClient struct {
	mu        sync.Mutex
	calls     int
	embedding []float32
	err       error
}

func (m *mockEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.embedding != nil {
		return m.embedding, nil
	}
	// Deterministic per-text embedding so batch order can be verified.
	return []float32{float32(len(text)), 0}, nil
}

type mockVectorStore struct {
	searchVector []float32
	searchTopK   int
	results      []vector.Scored
	err          error
}

func (m *mockVectorStore) Insert([]vector.Record) error { return nil }
func (m *mockVectorStore) Search(v []float32, topK int) ([]vector.Scored, error) {
	m.searchVector = v
	m.searchTopK = topK
	return m.results, m.err
}
func (m *mockVectorStore) DeleteByDoc(string) error { return nil }
func (m *mockVectorStore) Count() (int, error)      { return len(m.results), nil }
func (m *mockVectorStore) Reset() error             { return nil }

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	embedder := NewEmbedder(&mockEmbedClient{})

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0) // lengths 1..10
	}

	results, err := embedder.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("got %d embeddings, want 10", len(results))
	}
	for i, e := range results {
		if e[0] != float32(i+1) {
			t.Errorf("results[%d][0] = %f, want %d", i, e[0], i+1)
		}
	}
}

func TestEmbedBatch_PropagatesError(t *testing.T) {
	wantErr := errors.New("upstream down")
	embedder := NewEmbedder(&mockEmbedClient{err: wantErr})

	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want wrapped upstream error", err)
	}
}

func TestRetrieve(t *testing.T) {
	store := &mockVectorStore{
		results: []vector.Scored{
			{Record: vector.Record{Text: "first", Source: "a.txt", ChunkIndex: 0}, Distance: 0.2},
			{Record: vector.Record{Text: "second", Source: "b.pdf", ChunkIndex: 3}, Distance: 0.9},
		},
	}
	r := NewRetriever(NewEmbedder(&mockEmbedClient{embedding: []float32{1, 2, 3}}), store, 5)

	chunks, err := r.Retrieve(context.Background(), "what is the policy?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if store.searchTopK != 5 {
		t.Errorf("topK = %d, want 5", store.searchTopK)
	}
	if len(store.searchVector) != 3 {
		t.Errorf("search vector length = %d, want 3", len(store.searchVector))
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	want := ContextChunk{Text: "second", Source: "b.pdf", ChunkIndex: 3, Distance: 0.9}
	if chunks[1] != want {
		t.Errorf("chunks[1] = %+v, want %+v", chunks[1], want)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	wantErr := errors.New("embed failed")
	r := NewRetriever(NewEmbedder(&mockEmbedClient{err: wantErr}), &mockVectorStore{}, 5)

	_, err := r.Retrieve(context.Background(), "query")
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want embed error", err)
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	wantErr := errors.New("search failed")
	store := &mockVectorStore{err: wantErr}
	r := NewRetriever(NewEmbedder(&mockEmbedClient{embedding: []float32{1}}), store, 5)

	_, err := r.Retrieve(context.Background(), "query")
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want search error", err)
	}
}
