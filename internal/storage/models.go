package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is the catalog record for one uploaded file. Its chunks live
// in the vector table under the same doc id.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// MemoryEntry is one distilled fact appended to the memory feed.
type MemoryEntry struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Fact      string    `json:"fact"`
	Timestamp time.Time `json:"timestamp"`
}
