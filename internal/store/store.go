package store

import (
	"context"
	"errors"
	"fmt"
)

// Named collections used by the sync engine. The set is fixed: schema bumps may
// add collections but never remove or rewrite existing ones.
const (
	GenerateCache = "generate_cache"
	DetectCache   = "detect_cache"
	PendingGen    = "pending_generate"
	PendingDetect = "pending_detect"
	PendingCollab = "pending_collab"
)

// Collections lists every collection a backend must provision on open.
var Collections = []string{
	GenerateCache,
	DetectCache,
	PendingGen,
	PendingDetect,
	PendingCollab,
}

// ErrStoreUnavailable means the backend could not be opened at all (missing
// file permissions, unreachable redis, ...). Callers should fall back to the
// in-memory backend for the session.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// IOError wraps a backend failure on an individual operation. The operation is
// not durable; callers retry or queue.
type IOError struct {
	Op         string
	Collection string
	Err        error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Entry is one row of a queue-like collection, in insertion order.
type Entry struct {
	ID    uint64
	Value []byte
}

// Store is crash-durable CRUD over a fixed set of named collections.
// Every call is atomic on its own; no cross-collection transactions exist.
//
// Implemented by the sqlite backend (default), the redis backend and the
// in-memory backend used in tests and as a degraded-mode fallback.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	Clear(ctx context.Context, collection string) error
	Count(ctx context.Context, collection string) (int, error)

	// Append adds a value to a queue-like collection and returns its
	// auto-assigned, monotonically increasing id.
	Append(ctx context.Context, collection string, value []byte) (uint64, error)

	// ScanAll returns every entry of a queue-like collection in insertion
	// order.
	ScanAll(ctx context.Context, collection string) ([]Entry, error)

	// DeleteEntry removes a single queue entry by id.
	DeleteEntry(ctx context.Context, collection string, id uint64) error

	Close() error
}

func ioErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Collection: collection, Err: err}
}
