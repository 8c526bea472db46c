// Package ingest turns uploaded files into indexed, searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halverson/skald/internal/chunker"
	"github.com/halverson/skald/internal/parser"
	"github.com/halverson/skald/internal/retrieval"
	"github.com/halverson/skald/internal/storage"
	"github.com/halverson/skald/internal/vector"
)

// ErrEmptyDocument is returned when a file parses successfully but yields
// no usable text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// DocumentStore persists document metadata.
type DocumentStore interface {
	SaveDocument(d storage.Document) error
	ListDocuments() ([]storage.Document, error)
	DeleteDocument(id string) error
	DeleteAllDocuments() error
	CountDocuments() (int, error)
}

// Ingestor extracts text, chunks it, embeds the chunks, and stores both
// vectors and document metadata.
type Ingestor struct {
	documents DocumentStore
	embedder  *retrieval.Embedder
	vectors   vector.Store
	chunkSize int
	overlap   int
}

// NewIngestor wires an Ingestor with the given chunking parameters.
func NewIngestor(documents DocumentStore, embedder *retrieval.Embedder, vectors vector.Store, chunkSize, overlap int) *Ingestor {
	return &Ingestor{
		documents: documents,
		embedder:  embedder,
		vectors:   vectors,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Ingest indexes one file and returns its document record.
func (ing *Ingestor) Ingest(ctx context.Context, filename string, content []byte) (storage.Document, error) {
	text, err := parser.Extract(content, filename)
	if err != nil {
		return storage.Document{}, err
	}

	chunks := chunker.Chunk(text, ing.chunkSize, ing.overlap)
	if len(chunks) == 0 {
		return storage.Document{}, ErrEmptyDocument
	}

	embeddings, err := ing.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return storage.Document{}, fmt.Errorf("embedding chunks: %w", err)
	}

	docID := uuid.NewString()
	now := time.Now().UTC()

	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vector.Record{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocID:      docID,
			Source:     filename,
			ChunkIndex: i,
			Text:       chunk,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}
	if err := ing.vectors.Insert(records); err != nil {
		return storage.Document{}, fmt.Errorf("storing vectors: %w", err)
	}

	doc := storage.Document{
		ID:         docID,
		Filename:   filename,
		FileType:   parser.FileType(filename),
		ChunkCount: len(chunks),
		UploadedAt: now,
	}
	if err := ing.documents.SaveDocument(doc); err != nil {
		return storage.Document{}, fmt.Errorf("saving document record: %w", err)
	}

	slog.Info("document indexed", "id", docID, "filename", filename, "chunks", len(chunks))
	return doc, nil
}

// Delete removes a document and its vectors. Vector cleanup is best effort;
// orphaned vectors only waste space and never match a known document.
func (ing *Ingestor) Delete(docID string) error {
	if err := ing.vectors.DeleteByDoc(docID); err != nil {
		slog.Warn("deleting vectors failed", "doc_id", docID, "error", err)
	}
	return ing.documents.DeleteDocument(docID)
}

// ResetAll removes every document record and vector.
func (ing *Ingestor) ResetAll() error {
	if err := ing.documents.DeleteAllDocuments(); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	if err := ing.vectors.Reset(); err != nil {
		return fmt.Errorf("resetting vectors: %w", err)
	}
	return nil
}
