package store

import (
	"context"

	"go.uber.org/zap"
)

type Config struct {
	Backend   string // "sqlite", "redis" or "memory"
	Path      string // sqlite database file
	RedisAddr string
	Prefix    string
}

// Open selects a backend from config. If the durable backend cannot be opened
// the caller decides whether to fall back; OpenOrFallback implements the
// default policy of degrading to memory for the session.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "redis":
		return OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr, Prefix: cfg.Prefix})
	case "memory":
		return NewMemoryStore(), nil
	default:
		path := cfg.Path
		if path == "" {
			path = "bricksync.db"
		}
		return OpenSQLite(path)
	}
}

// OpenOrFallback opens the configured backend and degrades to the in-memory
// store when persistent storage is denied. Work done in the fallback store is
// lost on restart, which beats refusing to work at all.
func OpenOrFallback(ctx context.Context, cfg Config, logger *zap.Logger) Store {
	s, err := Open(ctx, cfg)
	if err != nil {
		logger.Warn("durable store unavailable, using in-memory fallback",
			zap.String("backend", cfg.Backend),
			zap.Error(err),
		)
		return NewMemoryStore()
	}
	return s
}
