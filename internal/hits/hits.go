// Package hits joins search results with their display rows from the row store.
package hits

import (
	"context"
	"fmt"

	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// Hit is a match together with its display row.
type Hit struct {
	searchd.Match
	Row storage.Row `json:"-"`
	// Values is the display row by column, including post-processed columns.
	Values map[string]string `json:"values"`
	// Lists holds multi-valued columns split by SplitOnSep.
	Lists map[string][]string `json:"lists,omitempty"`
}

// Hits is a search result whose matches carry display rows.
type Hits struct {
	Time       float64            `json:"time"`
	Total      int                `json:"total"`
	TotalFound int                `json:"total_found"`
	Warning    string             `json:"warning,omitempty"`
	Words      []searchd.WordStat `json:"words,omitempty"`
	Matches    []*Hit             `json:"matches"`
	IDs        []string           `json:"ids"`
}

// Getter extracts the row id of a match.
type Getter func(m *searchd.Match) string

// ByID uses the document id.
func ByID(m *searchd.Match) string { return m.ID }

// ByGroup uses the grouped value, for grouped requests.
func ByGroup(m *searchd.Match) string {
	if m.Group == nil {
		return m.ID
	}
	return m.Group.Value
}

// PostProcessor rewrites fetched hits in place.
type PostProcessor interface {
	Process(h *Hits)
}

// DBFetch retrieves display rows for search results.
type DBFetch struct {
	rows   storage.RowFetcher
	sql    string
	getter Getter
	post   []PostProcessor
}

// Option configures a DBFetch.
type Option func(*DBFetch)

// WithGetter sets how row ids are read from matches. The default is ByID.
func WithGetter(g Getter) Option {
	return func(f *DBFetch) { f.getter = g }
}

// WithPostProcessors appends post processors run after every fetch.
func WithPostProcessors(p ...PostProcessor) Option {
	return func(f *DBFetch) { f.post = append(f.post, p...) }
}

// NewDBFetch creates a fetcher running sql, which must contain "$id". An
// empty sql yields a {id} row per match. rows may be nil when sql is empty.
func NewDBFetch(rows storage.RowFetcher, sql string, opts ...Option) *DBFetch {
	f := &DBFetch{rows: rows, sql: sql, getter: ByID}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns r with a display row attached to each match. An engine-reported
// error in r and row store failures are returned as errors.
func (f *DBFetch) Fetch(ctx context.Context, r *searchd.Result) (*Hits, error) {
	if r == nil {
		return &Hits{}, nil
	}
	if err := r.Err(""); err != nil {
		return nil, err
	}
	h := &Hits{
		Time:       r.Time,
		Total:      r.Total,
		TotalFound: r.TotalFound,
		Warning:    r.Warning,
		Words:      r.Words,
		Matches:    make([]*Hit, len(r.Matches)),
		IDs:        make([]string, len(r.Matches)),
	}
	for i := range r.Matches {
		h.IDs[i] = f.getter(&r.Matches[i])
	}
	if len(h.IDs) == 0 {
		return h, nil
	}

	var rows []storage.Row
	if f.sql == "" || f.rows == nil {
		rows = storage.TrivialRows(h.IDs)
	} else {
		var err error
		rows, err = f.rows.FetchRows(ctx, f.sql, h.IDs)
		if err != nil {
			return nil, fmt.Errorf("fetch hits: %w", err)
		}
	}
	if len(rows) != len(h.IDs) {
		return nil, fmt.Errorf("fetch hits: %w: %d rows for %d ids", storage.ErrRowCount, len(rows), len(h.IDs))
	}
	for i, m := range r.Matches {
		h.Matches[i] = &Hit{Match: m, Row: rows[i], Values: rows[i].Map()}
	}
	for _, p := range f.post {
		p.Process(h)
	}
	return h, nil
}

// Len returns the number of hits.
func (h *Hits) Len() int { return len(h.Matches) }
