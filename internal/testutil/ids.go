// Package testutil holds deterministic helpers shared by tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// SequentialIDs hands out peek ids "peek-1", "peek-2", ... and secret keys
// 1001, 1002, ... so that traces are byte-identical across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu    sync.Mutex
	peeks int
	keys  uint32
}

// NewSequentialIDs creates a generator whose first peek id is "peek-1".
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{keys: 1000}
}

// PeekID returns the next peek id.
func (g *SequentialIDs) PeekID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peeks++
	return fmt.Sprintf("peek-%d", g.peeks)
}

// SecretKey returns the next secret key.
func (g *SequentialIDs) SecretKey() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys++
	return g.keys
}

// WriteScript writes content to name under a fresh temporary directory and
// returns the file's path.
func WriteScript(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
