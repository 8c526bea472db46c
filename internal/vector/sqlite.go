package vector

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore provides vector storage and brute-force cosine distance
// search backed by SQLite. Adequate up to roughly 100K vectors; beyond
// that an ANN-indexed backend should replace it behind the Store
// interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
// The context_vectors table must already exist (created via migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds records to the context_vectors table in one transaction.
func (s *SQLiteStore) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO context_vectors (id, doc_id, source, chunk_index, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob := encodeFloat32s(r.Embedding)
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(r.ID, r.DocID, r.Source, r.ChunkIndex, r.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// idDistance holds only the ID and distance during the scan phase of Search.
// Full record details are fetched only for top-K winners.
type idDistance struct {
	ID       string
	Distance float32
}

// Search scans all vectors, computes cosine distance to the query, and
// returns the topK closest records ordered by ascending distance.
func (s *SQLiteStore) Search(vector []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := s.db.Query(`SELECT id, embedding FROM context_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idDistanceHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		dist := cosineDistance(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idDistance{ID: id, Distance: dist})
		} else if dist < (*h)[0].Distance {
			(*h)[0] = idDistance{ID: id, Distance: dist}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records only for the top-K IDs.
	topIDs := make([]string, h.Len())
	distances := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idDistance)
		topIDs[i] = item.ID
		distances[item.ID] = item.Distance
	}

	queryArgs := make([]interface{}, len(topIDs))
	for i, id := range topIDs {
		queryArgs[i] = id
	}
	fullQuery := `SELECT id, doc_id, source, chunk_index, text_chunk, embedding, created_at
		FROM context_vectors WHERE id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	fullRows, err := s.db.Query(fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer fullRows.Close()

	var results []Scored
	for fullRows.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := fullRows.Scan(&r.ID, &r.DocID, &r.Source, &r.ChunkIndex, &r.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		r.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, Scored{Record: r, Distance: distances[r.ID]})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	// Sort results by distance ascending (IN query doesn't preserve order).
	sortByDistance(results)

	return results, nil
}

// sortByDistance sorts Scored records ascending. Used for small slices (topK).
func sortByDistance(results []Scored) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Distance < results[j-1].Distance; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// DeleteByDoc removes all records belonging to the given document.
func (s *SQLiteStore) DeleteByDoc(docID string) error {
	if _, err := s.db.Exec("DELETE FROM context_vectors WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting vectors for document %s: %w", docID, err)
	}
	return nil
}

// Count returns the number of records in the context_vectors table.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM context_vectors").Scan(&count)
	return count, err
}

// Reset removes every record from the context_vectors table.
func (s *SQLiteStore) Reset() error {
	if _, err := s.db.Exec("DELETE FROM context_vectors"); err != nil {
		return fmt.Errorf("resetting vectors: %w", err)
	}
	return nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineDistance computes 1 - dot(a,b)/(aNorm*bNorm), the cosine distance
// in [0, 2]. aNorm is the precomputed L2 norm of vector a. Mismatched
// lengths and zero-norm rows yield the neutral distance 1.
func cosineDistance(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 1
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 1
	}
	return float32(1 - dot/(float64(aNorm)*bNorm))
}

// idDistanceHeap is a max-heap of idDistance ordered by Distance, so the
// worst candidate sits at the root during the scan phase.
type idDistanceHeap []idDistance

func (h idDistanceHeap) Len() int            { return len(h) }
func (h idDistanceHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h idDistanceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idDistanceHeap) Push(x interface{}) { *h = append(*h, x.(idDistance)) }
func (h *idDistanceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
