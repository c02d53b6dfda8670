// Package search ties the pieces of a faceted search together: a query is
// parsed, its hits are fetched from the row store and its facets computed,
// optionally through the request cache.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/cache"
	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/hits"
	"github.com/hyperjump/facetsearch/internal/metrics"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/searchd"
)

// Client runs faceted searches. A Client keeps the results of its last
// facet computation and must not be used concurrently; Clone it per request.
type Client struct {
	sd     *searchd.Client
	parser *query.Parser
	fetch  *hits.DBFetch
	facets *facets.Group
	cache  *cache.RequestCache
	index  string
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithParser parses every query string with p.
func WithParser(p *query.Parser) Option {
	return func(c *Client) { c.parser = p }
}

// WithHits fetches display rows of the hits with f.
func WithHits(f *hits.DBFetch) Option {
	return func(c *Client) { c.fetch = f }
}

// WithFacets computes g for every query with matches. g should be driven by
// the same searchd client as the Client.
func WithFacets(g *facets.Group) Option {
	return func(c *Client) { c.facets = g }
}

// WithCache serves main queries through rc.
func WithCache(rc *cache.RequestCache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithIndex sets the index queries go to, default the client's default index.
func WithIndex(index string) Option {
	return func(c *Client) { c.index = index }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client running its queries with sd.
func NewClient(sd *searchd.Client, opts ...Option) *Client {
	c := &Client{sd: sd, parser: &query.Parser{}, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Result is the outcome of one search.
type Result struct {
	Query  *query.MultiFieldQuery
	Hits   *hits.Hits
	Facets *facets.Group
}

// Searchd returns the underlying search service client, e.g. to set limits
// or the sort mode.
func (c *Client) Searchd() *searchd.Client { return c.sd }

// Parser returns the query parser.
func (c *Client) Parser() *query.Parser { return c.parser }

// Facets returns the facet group, or nil.
func (c *Client) Facets() *facets.Group { return c.facets }

// Cache returns the request cache, or nil.
func (c *Client) Cache() *cache.RequestCache { return c.cache }

// Query parses s and runs it.
func (c *Client) Query(ctx context.Context, s string, mode facets.CacheMode) (*Result, error) {
	return c.Run(ctx, c.parser.Parse(s), mode)
}

// Run runs q: the main query first, then its hits and, when anything
// matched, its facets. CacheOff bypasses the request cache.
func (c *Client) Run(ctx context.Context, q *query.MultiFieldQuery, mode facets.CacheMode) (*Result, error) {
	var engine searchd.Engine = c.sd.Engine()
	if c.cache != nil && mode != facets.CacheOff {
		engine = c.cache.WithPolicy(cache.ReadWrite)
	}
	return c.run(ctx, q, engine, func() error { return c.facets.Compute(ctx, q, mode) })
}

func (c *Client) run(ctx context.Context, q *query.MultiFieldQuery, engine searchd.Engine, computeFacets func() error) (*Result, error) {
	index := c.index
	if index == "" {
		index = c.sd.DefaultIndex()
	}
	c.sd.AddQuery(q.Engine(), index)

	start := time.Now()
	results, err := c.sd.Run(ctx, engine)
	metrics.SearchBatchDuration.WithLabelValues("hits").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.User(), err)
	}
	r := results[0]
	if r == nil {
		return nil, fmt.Errorf("search %q: empty result", q.User())
	}
	if err := r.Err(index); err != nil {
		return nil, err
	}
	if r.Warning != "" {
		c.logger.Warn("search warning", zap.String("query", q.User()), zap.String("warning", r.Warning))
	}

	res := &Result{Query: q, Facets: c.facets}
	fetch := c.fetch
	if fetch == nil || r.TotalFound == 0 {
		fetch = hits.NewDBFetch(nil, "")
	}
	if res.Hits, err = fetch.Fetch(ctx, r); err != nil {
		return nil, err
	}

	if c.facets == nil {
		return res, nil
	}
	if r.TotalFound == 0 {
		for _, f := range c.facets.Facets() {
			f.Reset()
		}
		return res, nil
	}
	if err := computeFacets(); err != nil {
		return nil, err
	}
	return res, nil
}

// Clone returns a client sharing the parser, row store, cache and logger
// with a fresh searchd client and fresh facets.
func (c *Client) Clone() *Client {
	cl := *c
	cl.sd = c.sd.Clone()
	if c.facets != nil {
		cl.facets = c.facets.CloneWith(cl.sd)
	}
	return &cl
}

// ErrNoCache is returned by Preload when no cache is attached.
var ErrNoCache = errors.New("search: no cache attached")
