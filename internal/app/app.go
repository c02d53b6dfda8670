// Package app wires the configured components of a facet search deployment:
// row store, full-text engine, request cache, indexer and search client.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/cache"
	"github.com/hyperjump/facetsearch/internal/config"
	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/hits"
	"github.com/hyperjump/facetsearch/internal/indexer"
	"github.com/hyperjump/facetsearch/internal/keyword"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/search"
	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// pingTimeout bounds the cache connectivity check at startup.
const pingTimeout = 3 * time.Second

// Components holds the long-lived parts of the application. Client is a
// prototype: Clone it for every search.
type Components struct {
	Config  *config.Config
	Storage *storage.SQLiteStorage
	Engine  *keyword.BleveEngine
	// Store is nil when caching is disabled or the cache is unreachable.
	Store   cache.Store
	Cache   *cache.RequestCache
	Indexer *indexer.Indexer
	Client  *search.Client
}

// Close releases the engine, the row store and the cache store.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// FlushCache removes the non-sticky cache entries. A no-op without a cache.
func (c *Components) FlushCache(ctx context.Context) error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Clear(ctx, false)
}

// New opens the row store and the engine, connects the cache and builds the
// indexer and the search client. An unreachable Redis is logged and the
// application runs without a cache.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{Config: cfg}
	var err error
	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	schema := cfg.Schema()
	c.Engine, err = keyword.NewBleveEngine(cfg.Storage.BleveIndexPath, schema,
		keyword.WithName(cfg.Engine.Index), keyword.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.Store = openStore(ctx, cfg.Cache, logger)

	sd := NewSearchd(cfg, c.Engine, logger)
	list := make([]*facets.Facet, 0, len(cfg.Facets))
	for _, fc := range cfg.Facets {
		list = append(list, facets.FromConfig(fc, facets.WithLogger(logger)))
	}
	c.Indexer = indexer.NewIndexer(c.Engine, c.Storage, schema, list,
		indexer.WithLogger(logger), indexer.WithSeparator(cfg.Hits.SplitSep))

	groupOpts := []facets.GroupOption{
		facets.WithCaching(cfg.Cache.CachingOrDefault(), cfg.Cache.Preloading),
		facets.WithGroupLogger(logger),
	}
	clientOpts := []search.Option{
		search.WithParser(&query.Parser{FieldMap: cfg.Query.FieldMap, AllowEmpty: cfg.Query.AllowEmpty}),
		search.WithHits(NewHitsFetch(cfg, c.Storage)),
		search.WithIndex(cfg.Engine.Index),
		search.WithLogger(logger),
	}
	if c.Store != nil {
		c.Cache = cache.NewRequestCache(c.Store, c.Engine, cache.WithLogger(logger))
		groupOpts = append(groupOpts, facets.WithCache(c.Cache))
		clientOpts = append(clientOpts, search.WithCache(c.Cache))
	}
	group := facets.NewGroup(sd, c.Storage, list, groupOpts...)
	clientOpts = append(clientOpts, search.WithFacets(group))
	c.Client = search.NewClient(sd, clientOpts...)
	return c, nil
}

// NewSearchd creates a search service client with the configured default
// options and sort presets.
func NewSearchd(cfg *config.Config, engine searchd.Engine, logger *zap.Logger) *searchd.Client {
	sd := searchd.NewClient(engine,
		searchd.WithDefaultIndex(cfg.Engine.Index), searchd.WithLogger(logger))
	sd.SetSortModePresets(cfg.Engine.SortModeOptions, true)
	sd.SetSortMode(cfg.Engine.SortMode, cfg.Engine.SortClause)
	sd.SetLimits(0, cfg.Engine.Limit, cfg.Engine.MaxMatches, 0)
	if len(cfg.Engine.FieldWeights) > 0 {
		sd.SetFieldWeights(cfg.Engine.FieldWeights)
	}
	return sd
}

// NewHitsFetch creates the display row fetch of the main results.
func NewHitsFetch(cfg *config.Config, rows storage.RowFetcher) *hits.DBFetch {
	var post []hits.PostProcessor
	if len(cfg.Hits.SplitFields) > 0 {
		post = append(post, hits.SplitOnSep{Fields: cfg.Hits.SplitFields, Sep: cfg.Hits.SplitSep})
	}
	if len(cfg.Hits.Highlight) > 0 {
		post = append(post, hits.Highlight{Fields: cfg.Hits.Highlight})
	}
	return hits.NewDBFetch(rows, cfg.Hits.SQL, hits.WithPostProcessors(post...))
}

func openStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) cache.Store {
	switch cfg.Driver {
	case config.CacheMemory:
		return cache.NewMemoryStore(cfg.Capacity, cfg.TTL())
	case config.CacheRedis:
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL(),
		})
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = store.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = store.Close()
			}
		}
		if err != nil {
			logger.Warn("cache unavailable, running without it", zap.Strings("addrs", cfg.Addrs), zap.Error(err))
			return nil
		}
		return store
	}
	return nil
}
