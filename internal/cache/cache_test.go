package cache

import (
	"bytes"
	"context"
	"testing"

	"bricksync/internal/store"
)

func TestResultCacheRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(store.NewMemoryStore(), store.GenerateCache)

	fp := GenerateFingerprint("castle", nil, nil)
	body := []byte(`{"png_url":"/x.png","brick_counts":{}}`)

	if err := c.Store(ctx, fp, body); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok, err := c.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit after Store")
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("expected %s, got %s", body, got)
	}
}

func TestResultCacheEvictAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(store.NewMemoryStore(), store.DetectCache)

	fp := DetectFingerprint("img")
	if err := c.Store(ctx, fp, []byte("x")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.EvictAll(ctx); err != nil {
		t.Fatalf("EvictAll: %v", err)
	}
	if _, ok, _ := c.Lookup(ctx, fp); ok {
		t.Fatalf("expected miss after EvictAll")
	}
}
