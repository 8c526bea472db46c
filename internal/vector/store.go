// Package vector stores chunk embeddings and performs nearest-neighbor
// search by cosine distance.
package vector

import "time"

// Record is one stored chunk with its embedding and metadata.
type Record struct {
	ID         string
	DocID      string
	Source     string
	ChunkIndex int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Scored pairs a record with its cosine distance from a query vector.
// Lower distance means more similar.
type Scored struct {
	Record
	Distance float32
}

// Store is the vector index consumed by retrieval and ingestion.
type Store interface {
	Insert(records []Record) error
	// Search returns up to topK records ordered by ascending distance.
	Search(vector []float32, topK int) ([]Scored, error)
	// DeleteByDoc removes all records for a document. Unknown ids are a no-op.
	DeleteByDoc(docID string) error
	Count() (int, error)
	Reset() error
}
