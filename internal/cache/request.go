package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/metrics"
	"github.com/hyperjump/facetsearch/internal/searchd"
)

// KeyPrefix starts every request fingerprint.
const KeyPrefix = "fsq:"

// Policy decides how a RequestCache uses its store.
type Policy struct {
	// Read serves requests from the store when present.
	Read bool
	// Write stores freshly computed results.
	Write bool
	// Sticky and Replace are passed to the store on write.
	Sticky  bool
	Replace bool
	TTL     time.Duration
}

// Common policies.
var (
	ReadWrite = Policy{Read: true, Write: true}
	ReadOnly  = Policy{Read: true}
	Preload   = Policy{Write: true, Sticky: true, Replace: true}
)

// RequestCache is a searchd.Engine that answers each request of a batch at
// most once per fingerprint. Cache hits report a time of 0. Misses are sent to
// the wrapped engine as one sub-batch, and a failure of that batch fails the
// whole call without writing anything.
type RequestCache struct {
	store  Store
	engine searchd.Engine
	policy Policy
	logger *zap.Logger
}

var _ searchd.Engine = (*RequestCache)(nil)

// RequestOption configures a RequestCache.
type RequestOption func(*RequestCache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RequestOption {
	return func(c *RequestCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPolicy sets the default policy. The default is ReadWrite.
func WithPolicy(p Policy) RequestOption {
	return func(c *RequestCache) { c.policy = p }
}

// NewRequestCache wraps engine with store.
func NewRequestCache(store Store, engine searchd.Engine, opts ...RequestOption) *RequestCache {
	c := &RequestCache{store: store, engine: engine, policy: ReadWrite, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the underlying store.
func (c *RequestCache) Store() Store { return c.store }

// Engine returns the wrapped engine.
func (c *RequestCache) Engine() searchd.Engine { return c.engine }

// WithPolicy returns a view of c sharing its store and engine under policy p.
func (c *RequestCache) WithPolicy(p Policy) *RequestCache {
	v := *c
	v.policy = p
	return &v
}

// Fingerprint identifies req by every parameter sent to the engine.
func Fingerprint(req searchd.Request) string {
	data, err := json.Marshal(req)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", req))
	}
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Execute implements searchd.Engine.
func (c *RequestCache) Execute(ctx context.Context, reqs []searchd.Request) ([]*searchd.Result, error) {
	results := make([]*searchd.Result, len(reqs))
	keys := make([]string, len(reqs))
	var missIdx []int
	var missReqs []searchd.Request

	for i, req := range reqs {
		keys[i] = Fingerprint(req)
		if c.policy.Read {
			if res, ok := c.get(ctx, keys[i]); ok {
				res.Time = 0
				results[i] = res
				metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
				c.logger.Debug("cache hit", zap.String("key", keys[i]))
				continue
			}
			metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
			c.logger.Debug("cache miss", zap.String("key", keys[i]))
		}
		missIdx = append(missIdx, i)
		missReqs = append(missReqs, req)
	}
	if len(missReqs) == 0 {
		return results, nil
	}

	computed, err := c.engine.Execute(ctx, missReqs)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missReqs) {
		return nil, fmt.Errorf("cache: engine returned %d results for %d requests", len(computed), len(missReqs))
	}
	for j, res := range computed {
		i := missIdx[j]
		results[i] = res
		if !c.policy.Write || res == nil || res.Error != "" {
			continue
		}
		c.set(ctx, keys[i], res)
	}
	return results, nil
}

// get returns the cached result for key. Store failures and undecodable
// entries count as misses.
func (c *RequestCache) get(ctx context.Context, key string) (*searchd.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			metrics.CacheErrorsTotal.WithLabelValues(OpGet).Inc()
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var res searchd.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &res, true
}

// set stores res under key. A failed write is logged, the result is still served.
func (c *RequestCache) set(ctx context.Context, key string, res *searchd.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("cannot encode result", zap.String("key", key), zap.Error(err))
		return
	}
	opts := SetOptions{TTL: c.policy.TTL, Sticky: c.policy.Sticky, Replace: c.policy.Replace}
	if err := c.store.Set(ctx, key, data, opts); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues(OpSet).Inc()
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes cached results, and preloaded ones too when alsoSticky is set.
func (c *RequestCache) Clear(ctx context.Context, alsoSticky bool) error {
	if err := c.store.Clear(ctx, alsoSticky); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
