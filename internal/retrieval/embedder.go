// Package retrieval embeds queries and finds the document chunks closest
// to them.
package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EmbedClient produces an embedding for a single text.
type EmbedClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps an EmbedClient with batch support.
type Embedder struct {
	client EmbedClient
}

// NewEmbedder creates an Embedder backed by the given client.
func NewEmbedder(client EmbedClient) *Embedder {
	return &Embedder{client: client}
}

// Embed returns the embedding for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, text)
}

// EmbedBatch embeds texts concurrently, preserving input order. A cap of 4
// in-flight requests keeps upstream rate limits happy.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			embedding, err := e.client.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = embedding
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
