// Package facets computes value distributions of a search over indexed
// attributes. A Facet groups the matches of a query by one attribute and
// resolves the grouped ids to terms from the row store. A Group batches its
// facets into a single engine round trip and coordinates caching.
package facets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/hits"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// Defaults of a facet definition.
const (
	DefaultMaxNumValues = 15
	DefaultGroupSort    = "@count desc"
	DefaultSelect       = "@groupby, @count"
	// OrderByTerm orders values by their term.
	OrderByTerm = "@term"
)

// Config defines a facet. Zero fields take the defaults documented per field.
type Config struct {
	Name string `yaml:"name" json:"name"`
	// SQLTable maps ids to terms, default "<name>_terms". An empty string marks
	// a numerical facet whose grouped values are the terms.
	SQLTable *string `yaml:"sql_table" json:"sql_table,omitempty"`
	// SQLCol is the term column, default name.
	SQLCol string `yaml:"sql_col" json:"sql_col,omitempty"`
	// SQLQuery overrides the term fetch, which must contain "$id".
	SQLQuery string `yaml:"sql_query" json:"sql_query,omitempty"`
	// Attr is the grouped attribute, default "<sql_col>_attr".
	Attr      string            `yaml:"attr" json:"attr,omitempty"`
	Func      searchd.GroupFunc `yaml:"func" json:"func,omitempty"`
	GroupSort string            `yaml:"group_sort" json:"group_sort,omitempty"`
	Select    string            `yaml:"select" json:"select,omitempty"`
	// GroupFunc is an expression such as "sum(votes)" exposed as @groupfunc
	// and used to sort groups.
	GroupFunc string `yaml:"group_func" json:"group_func,omitempty"`
	// SphField is the searchable field selections of this facet refine, default name.
	SphField     string `yaml:"sph_field" json:"sph_field,omitempty"`
	OrderBy      string `yaml:"order_by" json:"order_by,omitempty"`
	Order        string `yaml:"order" json:"order,omitempty"`
	MaxNumValues int    `yaml:"max_num_values" json:"max_num_values,omitempty"`
	Cutoff       int    `yaml:"cutoff" json:"cutoff,omitempty"`
	Augment      *bool  `yaml:"augment" json:"augment,omitempty"`
	Enabled      *bool  `yaml:"enabled" json:"enabled,omitempty"`
}

// Value is one computed facet value.
type Value struct {
	Term      string             `json:"term"`
	GroupBy   string             `json:"groupby"`
	Count     int                `json:"count"`
	GroupFunc float64            `json:"groupfunc"`
	Selected  bool               `json:"selected"`
	Extra     map[string]float64 `json:"extra,omitempty"`
}

// Results are the values of a facet with the engine statistics of its query.
type Results struct {
	Time       float64 `json:"time"`
	Total      int     `json:"total"`
	TotalFound int     `json:"total_found"`
	Warning    string  `json:"warning,omitempty"`
	Values     []Value `json:"values"`
}

// Facet is a single facet. Its prepared state is not safe for concurrent use;
// enabling and disabling are.
type Facet struct {
	name     string
	sqlTable string
	sqlCol   string
	sqlQuery string

	attr      string
	fn        searchd.GroupFunc
	groupSort string
	sel       string
	sphField  string

	orderBy   string
	orderDesc bool
	maxValues int
	cutoff    int
	augment   bool
	enabled   atomic.Bool

	rows    storage.RowFetcher
	client  *searchd.Client
	logger  *zap.Logger
	results Results
}

// Option configures a Facet.
type Option func(*Facet)

// WithRows sets the row store the facet terms are fetched from.
func WithRows(rows storage.RowFetcher) Option {
	return func(f *Facet) { f.rows = rows }
}

// WithClient attaches the search client used by Compute.
func WithClient(cl *searchd.Client) Option {
	return func(f *Facet) { f.client = cl }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Facet) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates the facet called name with default settings.
func New(name string, opts ...Option) *Facet {
	return FromConfig(Config{Name: name}, opts...)
}

// FromConfig creates a facet from its definition.
func FromConfig(cfg Config, opts ...Option) *Facet {
	f := &Facet{
		name:      cfg.Name,
		sqlCol:    or(cfg.SQLCol, cfg.Name),
		fn:        searchd.GroupFunc(or(string(cfg.Func), string(searchd.GroupByAttr))),
		groupSort: or(cfg.GroupSort, DefaultGroupSort),
		sel:       or(cfg.Select, DefaultSelect),
		sphField:  or(cfg.SphField, cfg.Name),
		orderBy:   OrderByTerm,
		maxValues: cfg.MaxNumValues,
		cutoff:    cfg.Cutoff,
		augment:   cfg.Augment == nil || *cfg.Augment,
		logger:    zap.NewNop(),
	}
	f.enabled.Store(cfg.Enabled == nil || *cfg.Enabled)
	if f.maxValues <= 0 {
		f.maxValues = DefaultMaxNumValues
	}
	if cfg.SQLTable == nil {
		f.sqlTable = cfg.Name + "_terms"
	} else {
		f.sqlTable = *cfg.SQLTable
	}
	switch {
	case cfg.SQLQuery != "":
		f.sqlQuery = cfg.SQLQuery
	case f.sqlTable != "":
		f.sqlQuery = fmt.Sprintf("select id, %s from %s where id in (%s)", f.sqlCol, f.sqlTable, storage.IDPlaceholder)
	}
	f.attr = or(cfg.Attr, f.sqlCol+"_attr")
	if cfg.GroupFunc != "" {
		f.SetGroupFunc(cfg.GroupFunc, searchd.AttrGroupFunc, "desc")
	}
	if cfg.OrderBy != "" {
		f.SetOrderBy(cfg.OrderBy, cfg.Order)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Name returns the facet name.
func (f *Facet) Name() string { return f.name }

// Attr returns the grouped attribute.
func (f *Facet) Attr() string { return f.attr }

// SphField returns the searchable field of the facet.
func (f *Facet) SphField() string { return f.sphField }

// SQLTable returns the term table, empty for a numerical facet.
func (f *Facet) SQLTable() string { return f.sqlTable }

// SQLCol returns the term column.
func (f *Facet) SQLCol() string { return f.sqlCol }

// SQLQuery returns the term fetch expression.
func (f *Facet) SQLQuery() string { return f.sqlQuery }

// AttachClient attaches the search client and, when not nil, the row store.
func (f *Facet) AttachClient(cl *searchd.Client, rows storage.RowFetcher) {
	f.client = cl
	if rows != nil {
		f.rows = rows
	}
}

// SetGroupBy sets the grouped attribute, its function and the group sort clause.
func (f *Facet) SetGroupBy(attr string, fn searchd.GroupFunc, groupSort string) {
	f.attr = attr
	f.fn = fn
	if groupSort != "" {
		f.groupSort = groupSort
	}
}

// SetGroupSort sets the group sort clause.
func (f *Facet) SetGroupSort(groupSort string) { f.groupSort = or(groupSort, DefaultGroupSort) }

// SetGroupFunc computes expr for each group under alias and sorts groups by it.
func (f *Facet) SetGroupFunc(expr, alias, order string) {
	alias = or(alias, searchd.AttrGroupFunc)
	f.sel = fmt.Sprintf("%s, %s as %s", DefaultSelect, expr, alias)
	f.groupSort = fmt.Sprintf("%s %s", alias, or(order, "desc"))
}

// SetOrderBy orders the returned values by key: @term, @count, @groupby,
// @groupfunc or a select alias. order is "asc" or "desc", default "desc".
func (f *Facet) SetOrderBy(key, order string) {
	f.orderBy = or(key, OrderByTerm)
	f.orderDesc = !strings.EqualFold(order, "asc")
}

// SetMaxNumValues sets how many values are returned.
func (f *Facet) SetMaxNumValues(n int) { f.maxValues = n }

// SetCutoff stops grouping after n matches. Zero means no cutoff.
func (f *Facet) SetCutoff(n int) { f.cutoff = n }

// SetAugment asks for one more value per selected value of this facet.
func (f *Facet) SetAugment(augment bool) { f.augment = augment }

// Enable makes the facet part of its group's computations.
func (f *Facet) Enable() { f.enabled.Store(true) }

// Disable leaves the facet out of its group's computations.
func (f *Facet) Disable() { f.enabled.Store(false) }

// Enabled reports whether the facet is computed by its group.
func (f *Facet) Enabled() bool { return f.enabled.Load() }

// Results returns the last computed results.
func (f *Facet) Results() Results { return f.results }

// Values returns the last computed values.
func (f *Facet) Values() []Value { return f.results.Values }

// Reset clears the computed results.
func (f *Facet) Reset() { f.results = Results{} }

// Compute computes the facet for q with the attached client. A disabled facet
// is only reset.
func (f *Facet) Compute(ctx context.Context, q *query.MultiFieldQuery) error {
	if !f.Enabled() {
		f.Reset()
		return nil
	}
	if f.client == nil {
		return fmt.Errorf("facet %s: no search client attached", f.name)
	}
	f.Prepare(q, f.client)
	results, err := f.client.RunQueries(ctx)
	if err != nil {
		return fmt.Errorf("facet %s: %w", f.name, err)
	}
	if err := f.SetValues(ctx, q, results[0]); err != nil {
		return err
	}
	f.OrderValues()
	return nil
}

// Prepare adds the facet query for q to the pending batch of cl and returns
// its position. The options of cl are left as they were found.
func (f *Facet) Prepare(q *query.MultiFieldQuery, cl *searchd.Client) int {
	saved := cl.Options()
	defer cl.RestoreOptions(saved)

	more := 0
	if f.augment {
		more = q.Count(f.sphField)
	}
	cl.SetLimits(0, f.maxValues+more, 0, 0)
	cl.SetCutoff(f.cutoff)
	cl.SetSelect(f.sel)
	cl.SetGroupBy(f.attr, f.fn, f.groupSort)
	return cl.AddQuery(q.Engine(), "")
}

// SetValues replaces the results of the facet with r, fetching the terms of
// the grouped ids from the row store.
func (f *Facet) SetValues(ctx context.Context, q *query.MultiFieldQuery, r *searchd.Result) error {
	f.Reset()
	if r == nil {
		return fmt.Errorf("facet %s: missing result", f.name)
	}
	if r.Warning != "" {
		f.logger.Warn("facet warning", zap.String("facet", f.name), zap.String("warning", r.Warning))
	}

	fetch := hits.NewDBFetch(f.rows, f.sqlQuery, hits.WithGetter(hits.ByGroup))
	h, err := fetch.Fetch(ctx, r)
	if err != nil {
		return fmt.Errorf("facet %s: %w", f.name, err)
	}

	res := Results{
		Time:       h.Time,
		Total:      h.Total,
		TotalFound: h.TotalFound,
		Warning:    h.Warning,
		Values:     make([]Value, 0, h.Len()),
	}
	for _, hit := range h.Matches {
		v := Value{Term: hit.Row.Last()}
		if g := hit.Group; g != nil {
			v.GroupBy = g.Value
			v.Count = g.Count
			if len(g.Extra) > 0 {
				v.Extra = make(map[string]float64, len(g.Extra))
				for k, x := range g.Extra {
					v.Extra[k] = x
				}
			}
		}
		if gf, ok := v.Extra[searchd.AttrGroupFunc]; ok {
			v.GroupFunc = gf
		} else {
			v.GroupFunc = float64(v.Count)
		}
		v.Selected = q.Selected(fmt.Sprintf("@%s %s", f.sphField, v.Term))
		res.Values = append(res.Values, v)
	}
	f.results = res
	return nil
}

// OrderValues sorts the values by the configured key.
func (f *Facet) OrderValues() {
	vals := f.results.Values
	sort.SliceStable(vals, func(i, j int) bool {
		c := compareValues(&vals[i], &vals[j], f.orderBy)
		if f.orderDesc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b *Value, key string) int {
	switch key {
	case OrderByTerm, "":
		return strings.Compare(a.Term, b.Term)
	case searchd.AttrCount:
		return a.Count - b.Count
	case searchd.AttrGroupFunc:
		return cmpFloat(a.GroupFunc, b.GroupFunc)
	case searchd.AttrGroupBy:
		x, errA := strconv.ParseFloat(a.GroupBy, 64)
		y, errB := strconv.ParseFloat(b.GroupBy, 64)
		if errA == nil && errB == nil {
			return cmpFloat(x, y)
		}
		return strings.Compare(a.GroupBy, b.GroupBy)
	default:
		return cmpFloat(a.Extra[key], b.Extra[key])
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Clone returns a facet with the same definition, row store and logger, no
// attached client and no results.
func (f *Facet) Clone() *Facet {
	c := &Facet{
		name: f.name, sqlTable: f.sqlTable, sqlCol: f.sqlCol, sqlQuery: f.sqlQuery,
		attr: f.attr, fn: f.fn, groupSort: f.groupSort, sel: f.sel, sphField: f.sphField,
		orderBy: f.orderBy, orderDesc: f.orderDesc, maxValues: f.maxValues,
		cutoff: f.cutoff, augment: f.augment, rows: f.rows, logger: f.logger,
	}
	c.enabled.Store(f.Enabled())
	return c
}

// String renders the facet and its values for the command line.
func (f *Facet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: (%d/%d values group sorted by %q in %g sec.)\n",
		f.name, f.maxValues, f.results.TotalFound, f.groupSort, f.results.Time)
	for i, v := range f.results.Values {
		fmt.Fprintf(&b, "\t%d. %s, @count=%d, @groupby=%s, @groupfunc=%g, @selected=%t\n",
			i+1, v.Term, v.Count, v.GroupBy, v.GroupFunc, v.Selected)
	}
	return b.String()
}
