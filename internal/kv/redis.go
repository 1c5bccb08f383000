package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// RedisStore shares state between several clipboard instances.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis parses a redis:// URL and fails fast when the server is unreachable.
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, xerrors.Wrap(err, "invalid redis url")
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(err, "connect to redis")
	}
	return &RedisStore{client: client}, nil
}

func NewRedis(client *redis.Client) *RedisStore { return &RedisStore{client: client} }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "redis get")
	}
	return b, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return xerrors.Wrap(err, "redis set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return xerrors.Wrap(err, "redis del")
	}
	return nil
}

// List walks the keyspace with SCAN so large databases never block the server.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, xerrors.Wrap(err, "redis scan")
		}
		// SCAN may return a key more than once
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return xerrors.Wrap(err, "redis ping")
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
