package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps collections in redis: a hash per key/value collection and a
// sorted set + id counter per queue collection. Useful when several tools on
// the same host want to share one pending queue.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr   string
	Prefix string
}

// OpenRedis connects and verifies the server is reachable. Like the sqlite
// backend, opening is idempotent and provisions nothing up front: redis keys
// materialize on first write.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "bricksync"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) hashKey(collection string) string {
	return s.prefix + ":kv:" + collection
}

func (s *RedisStore) queueKey(collection string) string {
	return s.prefix + ":q:" + collection
}

func (s *RedisStore) seqKey(collection string) string {
	return s.prefix + ":seq:" + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey(collection), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioErr("get", collection, err)
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	err := s.client.HSet(ctx, s.hashKey(collection), key, value).Err()
	return ioErr("put", collection, err)
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	err := s.client.HDel(ctx, s.hashKey(collection), key).Err()
	return ioErr("delete", collection, err)
}

func (s *RedisStore) Clear(ctx context.Context, collection string) error {
	err := s.client.Del(ctx, s.hashKey(collection), s.queueKey(collection), s.seqKey(collection)).Err()
	return ioErr("clear", collection, err)
}

func (s *RedisStore) Count(ctx context.Context, collection string) (int, error) {
	kv, err := s.client.HLen(ctx, s.hashKey(collection)).Result()
	if err != nil {
		return 0, ioErr("count", collection, err)
	}
	q, err := s.client.ZCard(ctx, s.queueKey(collection)).Result()
	if err != nil {
		return 0, ioErr("count", collection, err)
	}
	return int(kv + q), nil
}

// Queue members carry their id as a "<id>:" prefix. The id is authoritative
// in the member, never in the score: the float score only orders the set and
// cannot represent ids above 2^53 exactly.
func queueMember(id uint64, value []byte) string {
	return strconv.FormatUint(id, 10) + ":" + string(value)
}

func parseQueueMember(raw string) (uint64, []byte, bool) {
	idStr, value, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, nil, false
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, nil, false
	}
	return id, []byte(value), true
}

func (s *RedisStore) Append(ctx context.Context, collection string, value []byte) (uint64, error) {
	id, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return 0, ioErr("append", collection, err)
	}
	err = s.client.ZAdd(ctx, s.queueKey(collection), redis.Z{
		Score:  float64(id),
		Member: queueMember(uint64(id), value),
	}).Err()
	if err != nil {
		return 0, ioErr("append", collection, err)
	}
	return uint64(id), nil
}

func (s *RedisStore) ScanAll(ctx context.Context, collection string) ([]Entry, error) {
	members, err := s.client.ZRangeByScore(ctx, s.queueKey(collection), &redis.ZRangeBy{
		Min: "-inf", Max: "+inf",
	}).Result()
	if err != nil {
		return nil, ioErr("scan", collection, err)
	}

	out := make([]Entry, 0, len(members))
	for _, m := range members {
		id, value, ok := parseQueueMember(m)
		if !ok {
			continue
		}
		out = append(out, Entry{ID: id, Value: value})
	}
	return out, nil
}

func (s *RedisStore) DeleteEntry(ctx context.Context, collection string, id uint64) error {
	members, err := s.client.ZRangeByScore(ctx, s.queueKey(collection), &redis.ZRangeBy{
		Min: "-inf", Max: "+inf",
	}).Result()
	if err != nil {
		return ioErr("delete_entry", collection, err)
	}
	for _, m := range members {
		mid, _, ok := parseQueueMember(m)
		if ok && mid == id {
			return ioErr("delete_entry", collection, s.client.ZRem(ctx, s.queueKey(collection), m).Err())
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
