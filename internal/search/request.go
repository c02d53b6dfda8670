package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/models"
)

// ErrInvalidRequest wraps problems with a search request itself, as opposed
// to failures running it.
var ErrInvalidRequest = errors.New("invalid search request")

// Search validates req, runs it on a clone of c and converts the result into
// a response whose urls live under root. c itself is left untouched.
func (c *Client) Search(ctx context.Context, req *models.SearchRequest, root string) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cl := c.Clone()
	cl.sd.SetLimits(req.Offset, req.Limit, 0, 0)
	if req.SortMode != "" {
		cl.sd.SetSortMode(req.SortMode, req.SortClause)
	}
	if len(req.Facets) > 0 && cl.facets != nil {
		if err := restrictFacets(cl.facets, req.Facets); err != nil {
			return nil, err
		}
	}
	mode := facets.CacheDefault
	if req.Cache != nil && !*req.Cache {
		mode = facets.CacheOff
	}

	start := time.Now()
	res, err := cl.Query(ctx, req.Query, mode)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(res, root)
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// restrictFacets enables exactly the named facets of g.
func restrictFacets(g *facets.Group, names []string) error {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := g.Facet(n); !ok {
			return fmt.Errorf("%w: unknown facet %q", ErrInvalidRequest, n)
		}
		keep[n] = true
	}
	for _, f := range g.Facets() {
		g.SetFacetEnabled(f.Name(), keep[f.Name()])
	}
	return nil
}
