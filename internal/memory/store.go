// Package memory persists distilled facts about the user and their company
// as markdown files, with a queryable feed of recent writes.
package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/halverson/skald/internal/storage"
)

// Memory targets.
const (
	TargetUser    = "user"
	TargetCompany = "company"
)

// ErrUnknownTarget is returned for targets other than "user" or "company".
var ErrUnknownTarget = errors.New("unknown memory target")

// FeedStore records memory writes for the activity feed.
type FeedStore interface {
	InsertMemoryEntry(e storage.MemoryEntry) error
	ListMemoryFeed(limit int) ([]storage.MemoryEntry, error)
	ClearMemoryFeed() error
}

var targetFiles = map[string]struct {
	filename string
	header   string
}{
	TargetUser:    {"USER_MEMORY.md", "# User Memory\n\n"},
	TargetCompany: {"COMPANY_MEMORY.md", "# Company Memory\n\n"},
}

// Store appends facts to per-target markdown files and mirrors each write
// into the feed. Appends are serialized with a mutex; the files are plain
// text so concurrent writers would interleave lines otherwise.
type Store struct {
	dataDir string
	feed    FeedStore
	mu      sync.Mutex
}

// NewStore creates a memory store rooted at dataDir.
func NewStore(dataDir string, feed FeedStore) *Store {
	return &Store{dataDir: dataDir, feed: feed}
}

// Append writes a timestamped fact line to the target's file, creating the
// file with its header on first write, and records the write in the feed.
func (s *Store) Append(target, fact string, id string, at time.Time) error {
	tf, ok := targetFiles[target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dataDir, tf.filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening memory file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating memory file: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(tf.header); err != nil {
			return fmt.Errorf("writing memory header: %w", err)
		}
	}

	line := fmt.Sprintf("- [%s] %s\n", at.Format("2006-01-02 15:04"), fact)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending memory fact: %w", err)
	}

	return s.feed.InsertMemoryEntry(storage.MemoryEntry{
		ID:        id,
		Target:    target,
		Fact:      fact,
		Timestamp: at,
	})
}

// Read returns the raw markdown content for a target. A target that has
// never been written yields just its header.
func (s *Store) Read(target string) (string, error) {
	tf, ok := targetFiles[target]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(s.dataDir, tf.filename))
	if errors.Is(err, os.ErrNotExist) {
		return tf.header, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading memory file: %w", err)
	}
	return string(content), nil
}

// Feed returns up to limit recent writes, newest first.
func (s *Store) Feed(limit int) ([]storage.MemoryEntry, error) {
	return s.feed.ListMemoryFeed(limit)
}

// Reset deletes both memory files and clears the feed.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tf := range targetFiles {
		err := os.Remove(filepath.Join(s.dataDir, tf.filename))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", tf.filename, err)
		}
	}
	return s.feed.ClearMemoryFeed()
}
