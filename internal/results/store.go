// Package results holds the most recently produced conversion artifact until
// it is consumed or cleared.
package results

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"marklift/internal/items"
)

// Content kinds a finished conversion can carry.
const (
	ContentMarkdown = "text/markdown"
	ContentArchive  = "application/zip"
	ContentBinary   = "application/octet-stream"
)

// Result is one downloadable artifact plus the items that produced it, kept
// in submission order for filename derivation.
type Result struct {
	Payload     []byte
	ContentKind string
	SourceItems []items.Item
	CreatedAt   time.Time
}

// Filename derives the name the artifact should be saved under. A single
// markdown document reuses the first source item's name with its extension
// swapped for .md; everything else falls back to a timestamped name.
func (r Result) Filename() string {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	stamp := createdAt.Format("20060102-150405")

	ext := ".md"
	if r.ContentKind == ContentArchive {
		ext = ".zip"
	} else if r.ContentKind == ContentBinary {
		ext = ".bin"
	}

	if r.ContentKind == ContentMarkdown && len(r.SourceItems) > 0 {
		name := strings.TrimSpace(r.SourceItems[0].Name)
		if name != "" && !strings.Contains(name, "://") {
			base := strings.TrimSuffix(name, filepath.Ext(name))
			if base != "" {
				return base + ".md"
			}
		}
	}
	return fmt.Sprintf("marklift-%s%s", stamp, ext)
}

// Store keeps exactly one live result at a time. Set replaces
// unconditionally; the previous artifact is gone once a new one lands.
type Store struct {
	mu      sync.Mutex
	current *Result
}

// NewStore constructs an empty result store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the live result.
func (s *Store) Set(result Result) {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &result
}

// Get returns the live result, or nil when none is held.
func (s *Store) Get() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Clear drops the live result.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
