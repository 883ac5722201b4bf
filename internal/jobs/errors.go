package jobs

import (
	"context"
	"errors"
	"fmt"
)

// ErrConcurrentJob is returned when a second job of the same kind/target is
// started while one is already in flight. The caller should wait for the
// first to finish rather than interleave polls.
var ErrConcurrentJob = errors.New("a job of this kind is already in flight")

// TransportError covers network-level failures and submit rejections: the
// backend never accepted (or never saw) the job.
type TransportError struct {
	Op     string // "submit" or "poll"
	Status int    // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport error during %s: status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// JobFailedError means the backend accepted the job and then reported a
// terminal failure for it.
type JobFailedError struct {
	Kind   Kind
	JobID  string
	Status int
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("%s job %s failed (status %d)", e.Kind, e.JobID, e.Status)
}

// IsCancelled reports whether err is a caller-initiated abort. Cancellation
// is not a failure: it never queues the request and never mutates the cache.
// In-flight failures must be classified by the caller's ctx.Err(), not by
// unwrapping request errors, because internal per-request timeouts wrap
// context.DeadlineExceeded as well.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
