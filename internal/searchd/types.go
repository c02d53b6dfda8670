// Package searchd is the client side of the full-text search service: it holds
// the query options, batches requests and hands them to an Engine in one round trip.
package searchd

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoQueries is returned by RunQueries when nothing was added to the batch.
var ErrNoQueries = errors.New("searchd: no queries to run")

// GroupFunc is the function applied to an attribute before grouping.
type GroupFunc string

// Grouping functions. Day, week, month and year expect a unix timestamp attribute.
const (
	GroupByAttr  GroupFunc = "attr"
	GroupByDay   GroupFunc = "day"
	GroupByWeek  GroupFunc = "week"
	GroupByMonth GroupFunc = "month"
	GroupByYear  GroupFunc = "year"
)

// SortMode selects how ungrouped matches are ordered.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortAttrDesc  SortMode = "attr_desc"
	SortAttrAsc   SortMode = "attr_asc"
	// SortExtended takes a clause such as "year desc, @weight desc".
	SortExtended SortMode = "extended"
)

// Virtual attribute names understood in select and group sort clauses.
const (
	AttrGroupBy   = "@groupby"
	AttrCount     = "@count"
	AttrGroupFunc = "@groupfunc"
	AttrWeight    = "@weight"
	AttrID        = "@id"
)

// Options are the per-request settings of the search service.
type Options struct {
	Offset       int                `json:"offset"`
	Limit        int                `json:"limit"`
	MaxMatches   int                `json:"max_matches"`
	Cutoff       int                `json:"cutoff"`
	Select       string             `json:"select"`
	GroupBy      string             `json:"group_by,omitempty"`
	GroupFunc    GroupFunc          `json:"group_func,omitempty"`
	GroupSort    string             `json:"group_sort,omitempty"`
	SortMode     SortMode           `json:"sort_mode"`
	SortClause   string             `json:"sort_clause,omitempty"`
	FieldWeights map[string]float64 `json:"field_weights,omitempty"`
}

// DefaultOptions returns the options of a fresh client.
func DefaultOptions() Options {
	return Options{
		Limit:      20,
		MaxMatches: 1000,
		Select:     "*",
		GroupSort:  "@groupby desc",
		SortMode:   SortRelevance,
	}
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	c := o
	if o.FieldWeights != nil {
		c.FieldWeights = make(map[string]float64, len(o.FieldWeights))
		for k, v := range o.FieldWeights {
			c.FieldWeights[k] = v
		}
	}
	return c
}

// Grouped reports whether the options request grouping.
func (o Options) Grouped() bool { return o.GroupBy != "" }

// Request is one query of a batch together with the options it was added with.
type Request struct {
	Index   string  `json:"index"`
	Query   string  `json:"query"`
	Options Options `json:"options"`
}

// Result is the answer to one Request.
type Result struct {
	Time       float64    `json:"time"`
	Total      int        `json:"total"`
	TotalFound int        `json:"total_found"`
	Error      string     `json:"error,omitempty"`
	Warning    string     `json:"warning,omitempty"`
	Matches    []Match    `json:"matches"`
	Words      []WordStat `json:"words,omitempty"`
}

// Err returns the engine-reported error of r as an *EngineError, or nil.
func (r *Result) Err(index string) error {
	if r == nil || r.Error == "" {
		return nil
	}
	return &EngineError{Index: index, Message: r.Error}
}

// Match is a single document or, for grouped requests, a single group.
type Match struct {
	ID     string              `json:"id"`
	Weight float64             `json:"weight"`
	Attrs  map[string][]string `json:"attrs,omitempty"`
	Group  *Group              `json:"group,omitempty"`
}

// Attr returns the first value of the named attribute.
func (m *Match) Attr(name string) string {
	if v := m.Attrs[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Group holds the grouped value of a match, its count and any computed select aliases.
type Group struct {
	Value string             `json:"groupby"`
	Count int                `json:"count"`
	Extra map[string]float64 `json:"extra,omitempty"`
}

// WordStat reports how many documents and hits a query word had.
type WordStat struct {
	Word string `json:"word"`
	Docs int    `json:"docs"`
	Hits int    `json:"hits"`
}

// Engine executes a batch of requests in one round trip. A returned error means
// the whole batch failed; per-request problems are reported in Result.Error.
type Engine interface {
	Execute(ctx context.Context, reqs []Request) ([]*Result, error)
}

// EngineError is a hard failure reported by the engine for one request.
type EngineError struct {
	Index   string
	Message string
}

func (e *EngineError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("searchd: %s", e.Message)
	}
	return fmt.Sprintf("searchd: index %s: %s", e.Index, e.Message)
}
