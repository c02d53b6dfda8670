package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/cache"
	"github.com/hyperjump/facetsearch/internal/query"
)

// Visit is called with every query preloaded and its result.
type Visit func(q *query.MultiFieldQuery, res *Result)

// Preload stores the results of q and of every query reachable from it by
// selecting depth more facet values. Preloaded entries are sticky. Queries
// already visited are skipped. An empty q starts from the whole catalogue.
func (c *Client) Preload(ctx context.Context, q *query.MultiFieldQuery, depth int, visit Visit) (int, error) {
	if c.cache == nil {
		return 0, ErrNoCache
	}
	// Refinements are clones of root and inherit AllowEmpty.
	root := q.Clone()
	root.AllowEmpty = true
	seen := make(map[string]bool)
	return c.preload(ctx, root, depth, visit, seen)
}

func (c *Client) preload(ctx context.Context, q *query.MultiFieldQuery, depth int, visit Visit, seen map[string]bool) (int, error) {
	if depth < 0 || seen[q.Canonical()] {
		return 0, nil
	}
	seen[q.Canonical()] = true
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res, err := c.run(ctx, q, c.cache.WithPolicy(cache.Preload), func() error {
		return c.facets.Preload(ctx, q)
	})
	if err != nil {
		return 0, fmt.Errorf("preload %q: %w", q.User(), err)
	}
	if visit != nil {
		visit(q, res)
	}
	c.logger.Debug("preloaded", zap.String("query", q.User()), zap.Int("depth", depth))

	var next []*query.MultiFieldQuery
	if c.facets != nil {
		for _, f := range c.facets.Enabled() {
			for _, v := range f.Values() {
				if v.Selected {
					continue
				}
				next = append(next, Refine(q, f.SphField(), v.Term))
			}
		}
	}
	n := 1
	for _, child := range next {
		m, err := c.preload(ctx, child, depth-1, visit, seen)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Refine returns a copy of q with the term (@field term) added.
func Refine(q *query.MultiFieldQuery, field, term string) *query.MultiFieldQuery {
	r := q.Clone()
	r.AddString(fmt.Sprintf("(@%s %s)", field, term))
	return r
}

// Toggle returns a copy of q where the term (@field term) is toggled when
// present and added otherwise.
func Toggle(q *query.MultiFieldQuery, field, term string) *query.MultiFieldQuery {
	fragment := fmt.Sprintf("(@%s %s)", field, term)
	if q.ContainsString(fragment) {
		return q.QueryToggleString(fragment)
	}
	return Refine(q, field, term)
}
