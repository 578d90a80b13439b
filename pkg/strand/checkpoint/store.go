// Package checkpoint defines the persistence contract the engine suspends
// and resumes against, plus memory and sqlite stores.
//
// The engine only ever talks to the Store interface: one serialized
// snapshot per thread id, last write wins. Implementations must be safe
// for concurrent use and must guarantee at most one writer per thread id
// at a time; the engine's own per-thread ownership guard rejects
// concurrent invocations before they reach the store.
package checkpoint

import "errors"

// Store persists one execution snapshot per thread id.
type Store interface {
	// Save stores the snapshot for a thread, replacing any previous one.
	Save(threadID string, data []byte) error

	// Load retrieves the snapshot for a thread.
	// Returns ErrNotFound if none exists.
	Load(threadID string) ([]byte, error)

	// Delete removes a thread's snapshot. Deleting an absent thread is
	// not an error.
	Delete(threadID string) error

	// Close releases any resources.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no snapshot exists for the thread.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
