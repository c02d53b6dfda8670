package searchd

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SortPreset is a named sort mode with its clause, e.g. "newest" → (attr_desc, "year").
type SortPreset struct {
	Mode   SortMode `yaml:"mode" json:"mode"`
	Clause string   `yaml:"clause" json:"clause"`
}

// Client holds the mutable query options and the pending batch. It is not safe
// for concurrent use; use Clone to get one per goroutine.
type Client struct {
	engine       Engine
	opts         Options
	defaultIndex string
	sortPresets  map[string]SortPreset
	pending      []Request
	logger       *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for batch diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultIndex sets the index used when AddQuery gets an empty one.
func WithDefaultIndex(index string) ClientOption {
	return func(c *Client) { c.defaultIndex = index }
}

// WithOptions replaces the initial options.
func WithOptions(opts Options) ClientOption {
	return func(c *Client) { c.opts = opts.Clone() }
}

// NewClient creates a client that runs its batches on engine.
func NewClient(engine Engine, opts ...ClientOption) *Client {
	c := &Client{
		engine:       engine,
		opts:         DefaultOptions(),
		defaultIndex: "*",
		sortPresets:  make(map[string]SortPreset),
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Engine returns the engine the client runs its batches on.
func (c *Client) Engine() Engine { return c.engine }

// SetLimits sets offset and limit. maxMatches and cutoff are only changed when positive.
func (c *Client) SetLimits(offset, limit, maxMatches, cutoff int) {
	c.opts.Offset = offset
	c.opts.Limit = limit
	if maxMatches > 0 {
		c.opts.MaxMatches = maxMatches
	}
	if cutoff > 0 {
		c.opts.Cutoff = cutoff
	}
}

// SetCutoff sets the number of matches after which the engine stops looking.
// Zero means no cutoff.
func (c *Client) SetCutoff(cutoff int) { c.opts.Cutoff = cutoff }

// SetSelect sets the select clause, e.g. "@groupby, @count, sum(votes) as @groupfunc".
func (c *Client) SetSelect(sel string) { c.opts.Select = sel }

// SetGroupBy groups results by attr after applying fn, sorting groups by groupSort.
func (c *Client) SetGroupBy(attr string, fn GroupFunc, groupSort string) {
	if fn == "" {
		fn = GroupByAttr
	}
	if groupSort == "" {
		groupSort = "@groupby desc"
	}
	c.opts.GroupBy = attr
	c.opts.GroupFunc = fn
	c.opts.GroupSort = groupSort
}

// ResetGroupBy disables grouping.
func (c *Client) ResetGroupBy() {
	c.opts.GroupBy = ""
	c.opts.GroupFunc = ""
	c.opts.GroupSort = "@groupby desc"
}

// SetSortModePresets registers named sort modes. When reset is false the
// presets are merged into the existing ones.
func (c *Client) SetSortModePresets(presets map[string]SortPreset, reset bool) {
	if reset {
		c.sortPresets = make(map[string]SortPreset, len(presets))
	}
	for k, v := range presets {
		c.sortPresets[k] = v
	}
}

// SetSortMode sets the sort mode. A registered preset name takes precedence
// and its own clause is used.
func (c *Client) SetSortMode(mode, clause string) {
	if p, ok := c.sortPresets[mode]; ok {
		c.opts.SortMode, c.opts.SortClause = p.Mode, p.Clause
		return
	}
	c.opts.SortMode, c.opts.SortClause = SortMode(mode), clause
}

// SetFieldWeights sets per-field relevance weights.
func (c *Client) SetFieldWeights(weights map[string]float64) {
	c.opts.FieldWeights = make(map[string]float64, len(weights))
	for k, v := range weights {
		c.opts.FieldWeights[k] = v
	}
}

// SetDefaultIndex sets the index used when AddQuery gets an empty one.
func (c *Client) SetDefaultIndex(index string) { c.defaultIndex = index }

// DefaultIndex returns the index used when none is given.
func (c *Client) DefaultIndex() string { return c.defaultIndex }

// Options returns a copy of the current options.
func (c *Client) Options() Options { return c.opts.Clone() }

// RestoreOptions reinstates options previously returned by Options.
func (c *Client) RestoreOptions(o Options) { c.opts = o.Clone() }

// AddQuery appends query with the current options to the pending batch and
// returns its position in the batch.
func (c *Client) AddQuery(query, index string) int {
	if index == "" {
		index = c.defaultIndex
	}
	c.pending = append(c.pending, Request{Index: index, Query: query, Options: c.opts.Clone()})
	return len(c.pending) - 1
}

// Pending returns the number of queries waiting to run.
func (c *Client) Pending() int { return len(c.pending) }

// TakePending removes and returns the pending batch.
func (c *Client) TakePending() []Request {
	reqs := c.pending
	c.pending = nil
	return reqs
}

// RunQueries executes the pending batch in one round trip and clears it.
func (c *Client) RunQueries(ctx context.Context) ([]*Result, error) {
	return c.Run(ctx, c.engine)
}

// Run executes the pending batch on engine instead of the client's own.
func (c *Client) Run(ctx context.Context, engine Engine) ([]*Result, error) {
	reqs := c.TakePending()
	if len(reqs) == 0 {
		return nil, ErrNoQueries
	}
	results, err := engine.Execute(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("run %d queries: %w", len(reqs), err)
	}
	if len(results) != len(reqs) {
		return nil, fmt.Errorf("run queries: got %d results for %d requests", len(results), len(reqs))
	}
	c.logger.Debug("batch executed", zap.Int("requests", len(reqs)))
	return results, nil
}

// Query runs a single query right away. An engine-reported error is returned
// as an *EngineError together with the result.
func (c *Client) Query(ctx context.Context, query, index string) (*Result, error) {
	if index == "" {
		index = c.defaultIndex
	}
	c.AddQuery(query, index)
	results, err := c.RunQueries(ctx)
	if err != nil {
		return nil, err
	}
	r := results[0]
	if r == nil {
		return nil, fmt.Errorf("query %q: empty result", query)
	}
	if r.Warning != "" {
		c.logger.Warn("search warning", zap.String("index", index), zap.String("warning", r.Warning))
	}
	return r, r.Err(index)
}

// Clone returns a client sharing the engine and logger, with a copy of the
// options and presets and an empty batch.
func (c *Client) Clone() *Client {
	cl := &Client{
		engine:       c.engine,
		opts:         c.opts.Clone(),
		defaultIndex: c.defaultIndex,
		sortPresets:  make(map[string]SortPreset, len(c.sortPresets)),
		logger:       c.logger,
	}
	for k, v := range c.sortPresets {
		cl.sortPresets[k] = v
	}
	return cl
}
