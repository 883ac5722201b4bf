package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bricksync/internal/metrics"
	"bricksync/pkg/logging/logging"
)

// LoggingResultCache wraps a ResultCache with logging + metrics.
type LoggingResultCache struct {
	inner ResultCache
	kind  string
}

// NewLoggingResultCache returns a cache that logs and records metrics.
// kind labels the metrics series ("generate" or "detect").
func NewLoggingResultCache(inner ResultCache, kind string) ResultCache {
	return &LoggingResultCache{inner: inner, kind: kind}
}

func (c *LoggingResultCache) Lookup(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Lookup(ctx, fingerprint)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.CacheHitsTotal.WithLabelValues(c.kind).Inc()
	}
	if result == "miss" {
		metrics.CacheMissesTotal.WithLabelValues(c.kind).Inc()
	}

	fields := []zap.Field{
		zap.String("kind", c.kind),
		zap.String("fingerprint", fingerprint),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Warn("result_cache_lookup", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("result_cache_lookup", fields...)
	}

	return value, ok, err
}

func (c *LoggingResultCache) Store(ctx context.Context, fingerprint string, result []byte) error {
	start := time.Now()
	err := c.inner.Store(ctx, fingerprint, result)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("kind", c.kind),
		zap.String("fingerprint", fingerprint),
		zap.Int("bytes", len(result)),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Warn("result_cache_store", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("result_cache_store", fields...)
	}

	return err
}

func (c *LoggingResultCache) EvictAll(ctx context.Context) error {
	err := c.inner.EvictAll(ctx)
	if err != nil {
		logging.L(ctx).Warn("result_cache_evict_all", zap.String("kind", c.kind), zap.Error(err))
		return err
	}
	logging.L(ctx).Info("result_cache_evict_all", zap.String("kind", c.kind))
	return nil
}
