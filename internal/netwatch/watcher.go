package netwatch

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Watcher probes the backend's health endpoint on an interval and tells
// subscribers when connectivity comes back. Only the offline-to-online edge
// is published: that is the signal that triggers queue drains and collab
// reconnects.
type Watcher struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger

	online atomic.Bool

	mu   sync.Mutex
	subs []func(ctx context.Context)
}

type Config struct {
	// BaseURL of the backend; "/healthz" is appended.
	BaseURL  string
	Interval time.Duration // default: 15s
	Client   *http.Client
}

func New(cfg Config, logger *zap.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		url:      cfg.BaseURL + "/healthz",
		interval: cfg.Interval,
		client:   cfg.Client,
		logger:   logger.Named("netwatch"),
	}
}

// Online reports the last observed connectivity state. Before the first
// probe completes the watcher assumes offline.
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Subscribe registers a callback invoked on every offline-to-online
// transition. Callbacks run on the watcher goroutine; long work should spawn
// its own goroutine. Subscribe before Run.
func (w *Watcher) Subscribe(fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Run probes until ctx is cancelled. The first probe fires immediately so
// startup counts as a connectivity event when the backend is reachable.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return
	}

	resp, err := w.client.Do(req)
	up := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	was := w.online.Swap(up)
	if up && !was {
		w.logger.Info("connectivity restored")
		w.notify(ctx)
	} else if !up && was {
		w.logger.Info("connectivity lost", zap.Error(err))
	}
}

func (w *Watcher) notify(ctx context.Context) {
	w.mu.Lock()
	subs := make([]func(ctx context.Context), len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, fn := range subs {
		fn(ctx)
	}
}
