// Package testutil provides shared test helpers for stores and clocks.
package testutil

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/postcards/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "postcards-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// StepClock returns a time source that advances by step on every call, starting at start.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := next
		next = next.Add(step)
		return cur
	}
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
