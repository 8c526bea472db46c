// Package storage persists document records and the memory feed in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for documents and memory entries.
// The context_vectors table is created here too; the vector store shares the
// same connection via DB().
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "skald.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for the vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Documents ---

func (s *Store) SaveDocument(d Document) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (id, filename, file_type, chunk_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.FileType, d.ChunkCount, d.UploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT id, filename, file_type, chunk_count, uploaded_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Filename, &d.FileType, &d.ChunkCount, &uploadedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	d.UploadedAt = t
	return d, nil
}

func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, file_type, chunk_count, uploaded_at
		FROM documents ORDER BY uploaded_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.FileType, &d.ChunkCount, &uploadedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		d.UploadedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDocument removes a document record. Deleting an id that does not
// exist is not an error; document deletion is idempotent.
func (s *Store) DeleteDocument(id string) error {
	_, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	return err
}

func (s *Store) DeleteAllDocuments() error {
	_, err := s.db.Exec("DELETE FROM documents")
	return err
}

func (s *Store) CountDocuments() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// --- Memory feed ---

func (s *Store) InsertMemoryEntry(e MemoryEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_feed (id, target, fact, timestamp)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.Target, e.Fact, e.Timestamp.UTC().Format(time.RFC3339),
	)
	return err
}

// ListMemoryFeed returns the most recent entries first.
func (s *Store) ListMemoryFeed(limit int) ([]MemoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, target, fact, timestamp
		FROM memory_feed ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Target, &e.Fact, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		e.Timestamp = t
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *Store) ClearMemoryFeed() error {
	_, err := s.db.Exec("DELETE FROM memory_feed")
	return err
}
