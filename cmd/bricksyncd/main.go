package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bricksync/internal/cache"
	"bricksync/internal/collab"
	"bricksync/internal/jobs"
	"bricksync/internal/metrics"
	"bricksync/internal/netwatch"
	"bricksync/internal/queue"
	"bricksync/internal/store"
	"bricksync/pkg/logging/logging"
)

type Config struct {
	Port string

	APIBaseURL string
	APIToken   string

	CollabURL  string
	CollabRoom string

	StoreBackend string // "sqlite", "redis" or "memory"
	StorePath    string
	RedisAddr    string

	ProbeInterval time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:          getenv("PORT", "9090"),
		APIBaseURL:    getenv("API_BASE_URL", "http://127.0.0.1:8000"),
		APIToken:      os.Getenv("API_TOKEN"),
		CollabURL:     getenv("COLLAB_URL", "ws://127.0.0.1:8000"),
		CollabRoom:    getenv("COLLAB_ROOM", "default"),
		StoreBackend:  getenv("STORE_BACKEND", "sqlite"),
		StorePath:     getenv("STORE_PATH", "bricksync.db"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		ProbeInterval: getdur("PROBE_INTERVAL_SECONDS", 15*time.Second),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("bricksyncd exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("collab_url", cfg.CollabURL),
		zap.String("collab_room", cfg.CollabRoom),
		zap.String("store_backend", cfg.StoreBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ----- Durable store -----
	st := store.OpenOrFallback(ctx, store.Config{
		Backend:   cfg.StoreBackend,
		Path:      cfg.StorePath,
		RedisAddr: cfg.RedisAddr,
	}, logger)
	defer st.Close()

	// ----- Caches and queues -----
	genCache := cache.NewLoggingResultCache(cache.New(st, store.GenerateCache), "generate")
	detCache := cache.NewLoggingResultCache(cache.New(st, store.DetectCache), "detect")
	genQueue := queue.New(st, store.PendingGen, "generate")
	detQueue := queue.New(st, store.PendingDetect, "detect")
	collabQueue := queue.New(st, store.PendingCollab, "collab")

	// ----- Job client + runner -----
	client, err := jobs.NewClient(jobs.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	// ----- Connectivity watcher -----
	watcher := netwatch.New(netwatch.Config{
		BaseURL:  cfg.APIBaseURL,
		Interval: cfg.ProbeInterval,
	}, logger)

	runner := jobs.NewRunner(jobs.RunnerDeps{
		Client:        client,
		GenerateCache: genCache,
		DetectCache:   detCache,
		GenerateQueue: genQueue,
		DetectQueue:   detQueue,
		Online:        watcher.Online,
		Logger:        logger,
	})

	genDrainer := queue.NewDrainer(genQueue, runner.GenerateReplay())
	detDrainer := queue.NewDrainer(detQueue, runner.DetectReplay())

	// ----- Collaboration channel -----
	channel := collab.NewChannel(collab.Config{
		URL:  cfg.CollabURL,
		Room: cfg.CollabRoom,
	}, collabQueue, logger)
	defer channel.Close()

	// Every offline-to-online transition (startup included) drains the
	// pending queues and reconnects the room.
	watcher.Subscribe(func(ctx context.Context) {
		go func() {
			_ = genDrainer.Drain(ctx)
			_ = detDrainer.Drain(ctx)
		}()
		go func() {
			if err := channel.Connect(ctx); err != nil {
				logger.Warn("collab reconnect failed", zap.Error(err))
			}
		}()
	})
	go watcher.Run(ctx)

	// ----- Local HTTP surface: health + metrics -----
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting sync agent", zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("sync agent shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
