package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bricksync/internal/cache"
	"bricksync/internal/metrics"
	"bricksync/internal/queue"
	"bricksync/pkg/logging/logging"
)

// Source says where an outcome's result body came from.
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
)

// Outcome is what a user-initiated job attempt produced. Exactly one of the
// following holds:
//   - Result from SourceLive: the job completed; the cache was updated.
//   - Queued, possibly with a stale Result from SourceCache: delivery failed,
//     the request was appended to the pending queue, and the last cached
//     result (if any) is surfaced with Stale=true.
type Outcome struct {
	Result []byte
	Source Source
	Queued bool
	Stale  bool

	// Err is the failure that caused queueing, for logs and UI copy.
	Err error
}

// Message is a short user-facing description distinguishing "queued for
// later" from "showing a stale cached result".
func (o *Outcome) Message() string {
	switch {
	case o.Queued && o.Stale:
		return "offline: request queued, showing a previously cached result"
	case o.Queued:
		return "offline: request queued for later"
	case o.Stale:
		return "showing a possibly stale cached result"
	default:
		return ""
	}
}

// Runner composes the job client with the result caches and pending queues,
// implementing the queue-on-any-failure policy for generate and detect: any
// non-cancellation failure during submission or polling appends the request
// to its pending queue instead of surfacing an unrecoverable error.
type Runner struct {
	client *Client

	genCache cache.ResultCache
	detCache cache.ResultCache
	genQueue *queue.PendingQueue
	detQueue *queue.PendingQueue

	// online reports the last known connectivity state. When it returns
	// false the live attempt is skipped entirely and the request goes
	// straight to the queue. Nil means "assume online".
	online func() bool

	logger *zap.Logger
}

type RunnerDeps struct {
	Client        *Client
	GenerateCache cache.ResultCache
	DetectCache   cache.ResultCache
	GenerateQueue *queue.PendingQueue
	DetectQueue   *queue.PendingQueue
	Online        func() bool
	Logger        *zap.Logger
}

func NewRunner(deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:   deps.Client,
		genCache: deps.GenerateCache,
		detCache: deps.DetectCache,
		genQueue: deps.GenerateQueue,
		detQueue: deps.DetectQueue,
		online:   deps.Online,
		logger:   logger.Named("runner"),
	}
}

// Generate runs a generation job. The cache is a fallback, not an authority:
// a live submission is always attempted unless the watcher says offline.
func (r *Runner) Generate(ctx context.Context, req GenerateRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generate request: %w", err)
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	// The guard key is the kind alone: one generate job at a time.
	return r.run(ctx, KindGenerate, "", req.Fingerprint(), body, r.genCache, r.genQueue)
}

// Detect runs an inventory detection job. The guard is scoped to the image
// so distinct images can run concurrently but the same image cannot.
func (r *Runner) Detect(ctx context.Context, req DetectRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detect request: %w", err)
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}
	return r.run(ctx, KindDetect, req.Fingerprint(), req.Fingerprint(), body, r.detCache, r.detQueue)
}

func (r *Runner) run(
	ctx context.Context,
	kind Kind,
	target, fingerprint string,
	body []byte,
	resultCache cache.ResultCache,
	pending *queue.PendingQueue,
) (*Outcome, error) {
	logger := logging.L(ctx).With(
		zap.String("kind", string(kind)),
		zap.String("fingerprint", fingerprint),
	)

	var runErr error
	if r.online == nil || r.online() {
		var result []byte
		result, runErr = r.client.Run(ctx, kind, target, body)
		if runErr == nil {
			// Terminal success is the only point where the cache is
			// written.
			if err := resultCache.Store(ctx, fingerprint, result); err != nil {
				// Non-fatal: the result is still good for this session.
				logger.Warn("caching job result failed", zap.Error(err))
			}
			metrics.JobsTotal.WithLabelValues(string(kind), "done").Inc()
			return &Outcome{Result: result, Source: SourceLive}, nil
		}

		// Cancellation discards partial state without touching cache or
		// queue, and is never presented as a failure. It is judged by the
		// caller's context, not the error chain: an internal per-request
		// timeout wraps DeadlineExceeded too, but that is a delivery
		// failure that must queue.
		if ctx.Err() != nil {
			metrics.JobsTotal.WithLabelValues(string(kind), "cancelled").Inc()
			return nil, runErr
		}

		// A guard violation is caller error, not a delivery failure.
		if errors.Is(runErr, ErrConcurrentJob) {
			return nil, runErr
		}
	} else {
		runErr = &TransportError{Op: "submit", Err: errors.New("offline")}
	}

	// Queue-on-any-failure: the request payload (not the job handle) is what
	// gets persisted for replay.
	if _, err := pending.Enqueue(ctx, body); err != nil {
		logger.Error("enqueue after failure failed", zap.Error(err))
		metrics.JobsTotal.WithLabelValues(string(kind), "failed").Inc()
		return nil, fmt.Errorf("request failed and could not be queued: %w", runErr)
	}
	metrics.JobsTotal.WithLabelValues(string(kind), "queued").Inc()

	logger.Info("request queued after failure", zap.Error(runErr))

	out := &Outcome{Queued: true, Err: runErr}
	if cached, ok, err := resultCache.Lookup(ctx, fingerprint); err == nil && ok {
		out.Result = cached
		out.Source = SourceCache
		out.Stale = true
	}
	return out, nil
}

// GenerateReplay returns the drainer's replay function for the generate
// queue: submit-and-poll one queued payload, writing through to the cache on
// success.
func (r *Runner) GenerateReplay() queue.ReplayFunc {
	return func(ctx context.Context, payload []byte) error {
		var req GenerateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decode queued generate request: %w", err)
		}
		result, err := r.client.Run(ctx, KindGenerate, "", payload)
		if err != nil {
			return err
		}
		return r.genCache.Store(ctx, req.Fingerprint(), result)
	}
}

// DetectReplay is the drainer's replay function for the detect queue.
func (r *Runner) DetectReplay() queue.ReplayFunc {
	return func(ctx context.Context, payload []byte) error {
		var req DetectRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decode queued detect request: %w", err)
		}
		result, err := r.client.Run(ctx, KindDetect, req.Fingerprint(), payload)
		if err != nil {
			return err
		}
		return r.detCache.Store(ctx, req.Fingerprint(), result)
	}
}

// EvictCaches clears both result caches. Only an explicit user command calls
// this; nothing expires on its own.
func (r *Runner) EvictCaches(ctx context.Context) error {
	if err := r.genCache.EvictAll(ctx); err != nil {
		return err
	}
	return r.detCache.EvictAll(ctx)
}
