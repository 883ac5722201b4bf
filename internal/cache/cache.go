package cache

import (
	"context"

	"bricksync/internal/store"
)

// ResultCache maps a request fingerprint to the last successful response body
// for that fingerprint. Entries never expire: staleness is surfaced to the
// user, not purged, and only an explicit EvictAll removes them.
type ResultCache interface {
	Lookup(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Store(ctx context.Context, fingerprint string, result []byte) error
	EvictAll(ctx context.Context) error
}

type resultCache struct {
	store      store.Store
	collection string
}

// New returns a ResultCache over one store collection.
func New(s store.Store, collection string) ResultCache {
	return &resultCache{store: s, collection: collection}
}

func (c *resultCache) Lookup(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	return c.store.Get(ctx, c.collection, fingerprint)
}

// Store overwrites unconditionally: last writer wins, no versioning.
func (c *resultCache) Store(ctx context.Context, fingerprint string, result []byte) error {
	return c.store.Put(ctx, c.collection, fingerprint, result)
}

func (c *resultCache) EvictAll(ctx context.Context) error {
	return c.store.Clear(ctx, c.collection)
}
