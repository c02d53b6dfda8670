package facets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/facetsearch/internal/cache"
	"github.com/hyperjump/facetsearch/internal/metrics"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// ErrNoCache is returned by cache operations of a group without a cache.
var ErrNoCache = errors.New("facets: no cache attached")

// CacheMode overrides the caching policy of a group for one computation.
type CacheMode int

const (
	// CacheDefault follows the Caching and Preloading settings of the group.
	CacheDefault CacheMode = iota
	// CacheOn reads from and writes to the cache, without preloading.
	CacheOn
	// CacheOff bypasses the cache.
	CacheOff
)

// Group computes a set of facets in one engine round trip.
type Group struct {
	facets []*Facet
	client *searchd.Client
	rows   storage.RowFetcher
	cache  *cache.RequestCache
	logger *zap.Logger

	// Caching reads results from the cache and writes new ones.
	Caching bool
	// Preloading reads results from the cache, where Preload put them.
	Preloading bool

	time float64
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithCache attaches a request cache. Its wrapped engine is the one used for
// cached computations.
func WithCache(rc *cache.RequestCache) GroupOption {
	return func(g *Group) { g.cache = rc }
}

// WithCaching sets the default caching policy.
func WithCaching(caching, preloading bool) GroupOption {
	return func(g *Group) { g.Caching, g.Preloading = caching, preloading }
}

// WithGroupLogger sets the logger.
func WithGroupLogger(l *zap.Logger) GroupOption {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGroup creates a group of facets computed with cl, fetching terms from rows.
func NewGroup(cl *searchd.Client, rows storage.RowFetcher, facets []*Facet, opts ...GroupOption) *Group {
	g := &Group{facets: facets, client: cl, rows: rows, logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	for _, f := range facets {
		f.AttachClient(cl, rows)
	}
	return g
}

// Facets returns the facets in definition order.
func (g *Group) Facets() []*Facet { return g.facets }

// Facet returns the facet called name.
func (g *Group) Facet(name string) (*Facet, bool) {
	for _, f := range g.facets {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// SetFacetEnabled enables or disables the facet called name between
// computations. It reports whether the facet exists.
func (g *Group) SetFacetEnabled(name string, enabled bool) bool {
	f, ok := g.Facet(name)
	if !ok {
		return false
	}
	if enabled {
		f.Enable()
	} else {
		f.Disable()
	}
	return true
}

// Cache returns the attached cache, or nil.
func (g *Group) Cache() *cache.RequestCache { return g.cache }

// Time is the engine time of the last computation, 0 when fully served from cache.
func (g *Group) Time() float64 { return g.time }

// Enabled returns the facets currently enabled, in definition order.
func (g *Group) Enabled() []*Facet {
	var out []*Facet
	for _, f := range g.facets {
		if f.Enabled() {
			out = append(out, f)
		}
	}
	return out
}

// Compute computes every enabled facet for q. An explicit CacheOn or CacheOff
// disables preloading for this call.
func (g *Group) Compute(ctx context.Context, q *query.MultiFieldQuery, mode CacheMode) error {
	caching, preloading := g.Caching, g.Preloading
	switch mode {
	case CacheOn:
		caching, preloading = true, false
	case CacheOff:
		caching, preloading = false, false
	}
	if g.cache == nil {
		caching, preloading = false, false
	}

	switch {
	case caching:
		return g.compute(ctx, q, g.cache.WithPolicy(cache.ReadWrite), "cached")
	case preloading:
		return g.compute(ctx, q, g.cache.WithPolicy(cache.ReadOnly), "cached")
	default:
		return g.compute(ctx, q, g.client.Engine(), "direct")
	}
}

// Preload computes q bypassing the cache and stores the results so they
// survive expiration and ordinary clears.
func (g *Group) Preload(ctx context.Context, q *query.MultiFieldQuery) error {
	if g.cache == nil {
		return ErrNoCache
	}
	return g.compute(ctx, q, g.cache.WithPolicy(cache.Preload), "preload")
}

// ClearCache removes cached results, and preloaded ones too when alsoSticky is set.
func (g *Group) ClearCache(ctx context.Context, alsoSticky bool) error {
	if g.cache == nil {
		return ErrNoCache
	}
	return g.cache.Clear(ctx, alsoSticky)
}

func (g *Group) compute(ctx context.Context, q *query.MultiFieldQuery, engine searchd.Engine, mode string) error {
	enabled := g.Enabled()
	for _, f := range g.facets {
		if !contains(enabled, f) {
			f.Reset()
		}
	}
	g.time = 0
	if len(enabled) == 0 {
		return nil
	}

	for _, f := range enabled {
		f.Prepare(q, g.client)
	}
	start := time.Now()
	results, err := g.client.Run(ctx, engine)
	metrics.SearchBatchDuration.WithLabelValues("facets").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FacetComputeTotal.WithLabelValues(mode, "error").Inc()
		return fmt.Errorf("compute facets: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, f := range enabled {
		eg.Go(func() error {
			if err := f.SetValues(egCtx, q, results[i]); err != nil {
				return err
			}
			f.OrderValues()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, f := range enabled {
			f.Reset()
		}
		metrics.FacetComputeTotal.WithLabelValues(mode, "error").Inc()
		return fmt.Errorf("compute facets: %w", err)
	}

	for _, f := range enabled {
		g.time += f.results.Time
	}
	metrics.FacetComputeTotal.WithLabelValues(mode, "ok").Inc()
	g.logger.Debug("facets computed",
		zap.String("query", q.User()),
		zap.String("mode", mode),
		zap.Int("facets", len(enabled)),
		zap.Float64("time", g.time))
	return nil
}

func contains(facets []*Facet, f *Facet) bool {
	for _, x := range facets {
		if x == f {
			return true
		}
	}
	return false
}

// Clone returns a group with a cloned client and cloned facets sharing the
// row store and the cache. Results are not copied.
func (g *Group) Clone() *Group { return g.CloneWith(g.client.Clone()) }

// CloneWith is Clone with the facets driven by cl.
func (g *Group) CloneWith(cl *searchd.Client) *Group {
	facets := make([]*Facet, len(g.facets))
	for i, f := range g.facets {
		facets[i] = f.Clone()
	}
	c := NewGroup(cl, g.rows, facets, WithCache(g.cache), WithGroupLogger(g.logger))
	c.Caching, c.Preloading = g.Caching, g.Preloading
	return c
}

// String renders all facets of the group.
func (g *Group) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "facets: (%d facets in %g sec.)\n", len(g.facets), g.time)
	for i, f := range g.facets {
		fmt.Fprintf(&b, "%d. %s", i+1, f)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
