package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Compile-time check: RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// DefaultTTL applies to non-sticky writes when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// RedisConfig holds connection parameters for a Redis store.
type RedisConfig struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore is a Store on Redis. Sticky entries are stored without expiration,
// which is how they are told apart from regular ones.
type RedisStore struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis via rueidis.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return newRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil
}

func newRedisStore(client rueidis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return &Error{Op: OpPing, Err: err}
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrNotFound
		}
		return nil, &Error{Op: OpGet, Err: err}
	}
	return data, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	key = s.prefix + key
	if !opts.Replace {
		sticky, err := s.sticky(ctx, key)
		if err != nil {
			return err
		}
		if sticky {
			return nil
		}
	}

	var cmd rueidis.Completed
	if opts.Sticky {
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	} else {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = s.ttl
		}
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpSet, Err: err}
	}
	return nil
}

// sticky reports whether key exists without expiration. PTTL answers -2 for a
// missing key and -1 for a key without expiration.
func (s *RedisStore) sticky(ctx context.Context, key string) (bool, error) {
	ttl, err := s.client.Do(ctx, s.client.B().Pttl().Key(key).Build()).AsInt64()
	if err != nil {
		return false, &Error{Op: OpTTL, Err: err}
	}
	return ttl == -1, nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.prefix+key).Build()).AsInt64()
	if err != nil {
		return false, &Error{Op: OpExists, Err: err}
	}
	return n > 0, nil
}

// Keys implements Store. Only keys under the configured prefix are listed,
// with the prefix removed.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	full, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	return keys, nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		res, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &Error{Op: OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, alsoSticky bool) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !alsoSticky {
			sticky, err := s.sticky(ctx, k)
			if err != nil {
				return err
			}
			if sticky {
				continue
			}
		}
		if err := s.client.Do(ctx, s.client.B().Del().Key(k).Build()).Error(); err != nil {
			return &Error{Op: OpDel, Err: err}
		}
	}
	return nil
}

// Close shuts down the client.
func (s *RedisStore) Close() error {
	s.client.Close()
	return nil
}
