package retrieval

import (
	"context"
	"fmt"

	"github.com/halverson/skald/internal/vector"
)

// ContextChunk is one retrieved chunk with provenance for citations.
type ContextChunk struct {
	Text       string
	Source     string
	ChunkIndex int
	Distance   float32
}

// Retriever embeds a query and searches the vector store.
type Retriever struct {
	embedder *Embedder
	store    vector.Store
	topK     int
}

// NewRetriever creates a Retriever returning up to topK chunks per query.
func NewRetriever(embedder *Embedder, store vector.Store, topK int) *Retriever {
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns the chunks closest to the query, ordered by ascending
// distance. No filtering is applied here; callers decide the relevance cutoff.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ContextChunk, error) {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(queryVector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			Text:       s.Text,
			Source:     s.Source,
			ChunkIndex: s.ChunkIndex,
			Distance:   s.Distance,
		}
	}
	return chunks, nil
}
