package queue

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"bricksync/internal/metrics"
	"bricksync/pkg/logging/logging"
)

// ReplayFunc replays one queued payload against the real backend. A nil error
// confirms delivery and allows the entry to be deleted.
type ReplayFunc func(ctx context.Context, payload []byte) error

// Drainer flushes a PendingQueue when connectivity returns. It replays
// entries one at a time in FIFO order and stops at the first failure, leaving
// the failed entry and everything behind it untouched: the next online event
// resumes from the same head-of-queue entry. Stopping early also avoids
// hammering a backend that is still unreachable.
type Drainer struct {
	queue    *PendingQueue
	replay   ReplayFunc
	draining atomic.Bool
}

func NewDrainer(q *PendingQueue, replay ReplayFunc) *Drainer {
	return &Drainer{queue: q, replay: replay}
}

// Drain processes the queue until it is empty or a replay fails. Overlapping
// calls are safe: while one drain is running, further calls return
// immediately. An entry is deleted only after its replay succeeded, so a
// crash mid-drain never loses work.
func (d *Drainer) Drain(ctx context.Context) error {
	if !d.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer d.draining.Store(false)

	logger := logging.L(ctx).With(zap.String("queue", d.queue.Kind()))

	entries, err := d.queue.Entries(ctx)
	if err != nil {
		logger.Warn("drain: reading pending entries failed", zap.Error(err))
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	logger.Info("draining pending queue", zap.Int("entries", len(entries)))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.replay(ctx, e.Payload); err != nil {
			// Not user-facing: the entry stays queued and is retried
			// silently on the next connectivity event.
			logger.Info("drain stopped at first failure",
				zap.Uint64("entry_id", e.ID),
				zap.Error(err),
			)
			return err
		}

		if err := d.queue.Delete(ctx, e.ID); err != nil {
			// The replay succeeded but the delete did not; stop so the
			// entry is not lost. A duplicate replay on the next drain is
			// the acceptable side of at-least-once.
			logger.Warn("drain: deleting replayed entry failed",
				zap.Uint64("entry_id", e.ID),
				zap.Error(err),
			)
			return err
		}

		metrics.DrainedEntriesTotal.WithLabelValues(d.queue.Kind()).Inc()
	}

	logger.Info("pending queue drained")
	return nil
}
