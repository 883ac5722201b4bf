package queue

import (
	"context"

	"bricksync/internal/metrics"
	"bricksync/internal/store"
)

// Entry is one pending request: the auto-assigned sequence id plus the
// original payload, exactly as it will be replayed.
type Entry struct {
	ID      uint64
	Payload []byte
}

// PendingQueue is an ordered durable list of requests that could not be
// delivered yet. Entries are appended on delivery failure and deleted only
// after a confirmed successful replay; they are never reordered.
type PendingQueue struct {
	store      store.Store
	collection string
	kind       string
}

// New returns a PendingQueue over one queue-like store collection. kind
// labels metrics ("generate", "detect" or "collab").
func New(s store.Store, collection, kind string) *PendingQueue {
	return &PendingQueue{store: s, collection: collection, kind: kind}
}

func (q *PendingQueue) Kind() string { return q.kind }

func (q *PendingQueue) Enqueue(ctx context.Context, payload []byte) (uint64, error) {
	id, err := q.store.Append(ctx, q.collection, payload)
	if err != nil {
		return 0, err
	}
	q.updateDepth(ctx)
	return id, nil
}

// Entries returns all pending entries in FIFO order.
func (q *PendingQueue) Entries(ctx context.Context) ([]Entry, error) {
	raw, err := q.store.ScanAll(ctx, q.collection)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, Entry{ID: e.ID, Payload: e.Value})
	}
	return out, nil
}

func (q *PendingQueue) Delete(ctx context.Context, id uint64) error {
	if err := q.store.DeleteEntry(ctx, q.collection, id); err != nil {
		return err
	}
	q.updateDepth(ctx)
	return nil
}

func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	return q.store.Count(ctx, q.collection)
}

func (q *PendingQueue) updateDepth(ctx context.Context) {
	if n, err := q.store.Count(ctx, q.collection); err == nil {
		metrics.QueueDepth.WithLabelValues(q.kind).Set(float64(n))
	}
}
