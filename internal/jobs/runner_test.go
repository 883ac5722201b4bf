package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"bricksync/internal/cache"
	"bricksync/internal/queue"
	"bricksync/internal/store"
)

type runnerFixture struct {
	runner   *Runner
	genCache cache.ResultCache
	genQueue *queue.PendingQueue
	detQueue *queue.PendingQueue
}

func newRunnerFixture(t *testing.T, baseURL string, online bool) *runnerFixture {
	t.Helper()

	st := store.NewMemoryStore()
	genCache := cache.New(st, store.GenerateCache)
	detCache := cache.New(st, store.DetectCache)
	genQueue := queue.New(st, store.PendingGen, "generate")
	detQueue := queue.New(st, store.PendingDetect, "detect")

	client, err := NewClient(Config{
		BaseURL:  baseURL,
		PollBase: time.Millisecond,
		PollMax:  2 * time.Millisecond,
		Sleeper:  &fakeSleeper{},
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	r := NewRunner(RunnerDeps{
		Client:        client,
		GenerateCache: genCache,
		DetectCache:   detCache,
		GenerateQueue: genQueue,
		DetectQueue:   detQueue,
		Online:        func() bool { return online },
		Logger:        zaptest.NewLogger(t),
	})

	return &runnerFixture{runner: r, genCache: genCache, genQueue: genQueue, detQueue: detQueue}
}

// jobServer immediately accepts generate jobs and completes them on the
// second poll with the given body.
func jobServer(t *testing.T, resultBody string) *httptest.Server {
	t.Helper()

	pending := map[string]bool{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "123"})
			return
		}
		if !pending["123"] {
			pending["123"] = true
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultBody))
	}))
}

func TestGenerateOnlineSuccessPopulatesCache(t *testing.T) {
	t.Parallel()

	const body = `{"png_url":"/x.png","brick_counts":{}}`
	srv := jobServer(t, body)
	defer srv.Close()

	f := newRunnerFixture(t, srv.URL, true)
	ctx := context.Background()

	req := GenerateRequest{Prompt: "castle"}
	out, err := f.runner.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Queued || out.Source != SourceLive {
		t.Fatalf("expected live result, got %+v", out)
	}
	if string(out.Result) != body {
		t.Fatalf("unexpected result body: %s", out.Result)
	}

	cached, ok, err := f.genCache.Lookup(ctx, req.Fingerprint())
	if err != nil || !ok {
		t.Fatalf("expected cache entry after success: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(cached, []byte(body)) {
		t.Fatalf("cache holds %s, want %s", cached, body)
	}
	if n, _ := f.genQueue.Len(ctx); n != 0 {
		t.Fatalf("success must not enqueue, queue has %d entries", n)
	}
}

func TestGenerateOfflineQueuesWithoutCacheMutation(t *testing.T) {
	t.Parallel()

	// The server must never be reached when the watcher reports offline.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request while offline: %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	f := newRunnerFixture(t, srv.URL, false)
	ctx := context.Background()

	out, err := f.runner.Generate(ctx, GenerateRequest{Prompt: "castle"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Queued {
		t.Fatalf("expected queued outcome, got %+v", out)
	}
	if out.Result != nil {
		t.Fatalf("no cached result exists, outcome must carry none")
	}
	if out.Message() != "offline: request queued for later" {
		t.Fatalf("unexpected message: %q", out.Message())
	}

	if n, _ := f.genQueue.Len(ctx); n != 1 {
		t.Fatalf("expected exactly one queued entry, got %d", n)
	}
	req := GenerateRequest{Prompt: "castle"}
	if _, ok, _ := f.genCache.Lookup(ctx, req.Fingerprint()); ok {
		t.Fatalf("cache must not be mutated on queueing")
	}
}

func TestGenerateFailureSurfacesStaleCache(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newRunnerFixture(t, srv.URL, true)
	ctx := context.Background()

	req := GenerateRequest{Prompt: "castle"}
	stale := []byte(`{"png_url":"/old.png","brick_counts":{}}`)
	if err := f.genCache.Store(ctx, req.Fingerprint(), stale); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	out, err := f.runner.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Queued || !out.Stale || out.Source != SourceCache {
		t.Fatalf("expected queued+stale outcome, got %+v", out)
	}
	if !bytes.Equal(out.Result, stale) {
		t.Fatalf("expected the cached body, got %s", out.Result)
	}
	if out.Err == nil {
		t.Fatalf("outcome should carry the underlying failure")
	}
}

func TestGenerateTimeoutQueuesRequest(t *testing.T) {
	t.Parallel()

	// A hung backend that never responds is the canonical connectivity
	// loss: the request must end up queued, not dropped as cancelled.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	genCache := cache.New(st, store.GenerateCache)
	genQueue := queue.New(st, store.PendingGen, "generate")

	client, err := NewClient(Config{
		BaseURL:       srv.URL,
		SubmitTimeout: 50 * time.Millisecond,
		PollBase:      time.Millisecond,
		Sleeper:       &fakeSleeper{},
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	runner := NewRunner(RunnerDeps{
		Client:        client,
		GenerateCache: genCache,
		DetectCache:   cache.New(st, store.DetectCache),
		GenerateQueue: genQueue,
		DetectQueue:   queue.New(st, store.PendingDetect, "detect"),
		Online:        func() bool { return true },
		Logger:        zaptest.NewLogger(t),
	})

	ctx := context.Background()
	out, err := runner.Generate(ctx, GenerateRequest{Prompt: "castle"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Queued {
		t.Fatalf("a hung backend must queue the request, got %+v", out)
	}
	var terr *TransportError
	if !errors.As(out.Err, &terr) {
		t.Fatalf("expected TransportError in outcome, got %v", out.Err)
	}
	if n, _ := genQueue.Len(ctx); n != 1 {
		t.Fatalf("expected one queued entry, got %d", n)
	}
}

func TestGenerateCancellationDoesNotQueue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "123"})
		}
	}))
	defer srv.Close()

	f := newRunnerFixture(t, srv.URL, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Generate(ctx, GenerateRequest{Prompt: "castle"})
	if !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if n, _ := f.genQueue.Len(context.Background()); n != 0 {
		t.Fatalf("cancellation must not enqueue")
	}
}

func TestDrainReplaysQueuedGenerate(t *testing.T) {
	t.Parallel()

	const body = `{"png_url":"/x.png","brick_counts":{}}`
	srv := jobServer(t, body)

	// Queue an entry while "offline".
	offline := newRunnerFixture(t, srv.URL, false)
	ctx := context.Background()
	req := GenerateRequest{Prompt: "castle"}
	if _, err := offline.runner.Generate(ctx, req); err != nil {
		t.Fatalf("Generate offline: %v", err)
	}
	if n, _ := offline.genQueue.Len(ctx); n != 1 {
		t.Fatalf("expected one queued entry")
	}

	// Connectivity restored: the drainer replays through the same runner.
	defer srv.Close()
	d := queue.NewDrainer(offline.genQueue, offline.runner.GenerateReplay())
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if n, _ := offline.genQueue.Len(ctx); n != 0 {
		t.Fatalf("queue must be empty after successful drain")
	}
	cached, ok, err := offline.genCache.Lookup(ctx, req.Fingerprint())
	if err != nil || !ok {
		t.Fatalf("expected cache entry after drain: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(cached, []byte(body)) {
		t.Fatalf("cache holds %s, want %s", cached, body)
	}
}
