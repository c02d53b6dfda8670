package keyword

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/facetsearch/internal/searchd"
)

// aggPattern matches "sum(votes) as @groupfunc" or "avg(rating*votes) as score" in a select clause.
var aggPattern = regexp.MustCompile(`(?i)^(sum|avg|min|max)\(\s*([\w*\s]+?)\s*\)\s+as\s+(@?\w+)$`)

type aggregate struct {
	fn    string
	attrs []string
	alias string
}

// parseSelect extracts the aggregate expressions of a select clause. Plain
// attributes and virtual attributes need no computation and are skipped.
func parseSelect(sel string, schema Schema) ([]aggregate, error) {
	var aggs []aggregate
	for _, item := range strings.Split(sel, ",") {
		item = strings.TrimSpace(item)
		if item == "" || item == "*" || strings.HasPrefix(item, "@") || schema.isAttr(item) {
			continue
		}
		m := aggPattern.FindStringSubmatch(item)
		if m == nil {
			return nil, fmt.Errorf("select: unsupported expression '%s'", item)
		}
		a := aggregate{fn: strings.ToLower(m[1]), alias: m[3]}
		for _, attr := range strings.Split(m[2], "*") {
			attr = strings.TrimSpace(attr)
			if !schema.isNumeric(attr) {
				return nil, fmt.Errorf("select: '%s' is not a numeric attribute", attr)
			}
			a.attrs = append(a.attrs, attr)
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

// group accumulates the documents sharing one grouped value.
type group struct {
	value  string
	id     string
	weight float64
	count  int
	attrs  map[string][]string
	sums   []float64
	mins   []float64
	maxs   []float64
}

func (e *BleveEngine) searchGrouped(q blevequery.Query, o searchd.Options) (*searchd.Result, error) {
	if !e.schema.isAttr(o.GroupBy) {
		return nil, fmt.Errorf("group-by attribute '%s' not found", o.GroupBy)
	}
	aggs, err := parseSelect(o.Select, e.schema)
	if err != nil {
		return nil, err
	}

	scan := o.MaxMatches
	if scan <= 0 {
		scan = math.MaxInt32
	}
	if o.Cutoff > 0 && o.Cutoff < scan {
		scan = o.Cutoff
	}
	req := bleve.NewSearchRequestOptions(q, scan, 0, false)
	req.Fields = e.schema.attrs()
	req.SortBy([]string{"-_score", "_id"})
	res, err := e.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	byValue := make(map[string]*group)
	var groups []*group
	for _, hit := range res.Hits {
		attrs := storedAttrs(hit)
		for _, raw := range attrs[o.GroupBy] {
			v, err := groupValue(raw, o.GroupFunc)
			if err != nil {
				return nil, err
			}
			g, ok := byValue[v]
			if !ok {
				g = &group{
					value: v, id: hit.ID, weight: hit.Score, attrs: attrs,
					sums: make([]float64, len(aggs)),
					mins: filled(len(aggs), math.Inf(1)),
					maxs: filled(len(aggs), math.Inf(-1)),
				}
				byValue[v] = g
				groups = append(groups, g)
			}
			g.count++
			for i, a := range aggs {
				x := a.eval(attrs)
				g.sums[i] += x
				g.mins[i] = math.Min(g.mins[i], x)
				g.maxs[i] = math.Max(g.maxs[i], x)
			}
		}
	}

	matches := make([]searchd.Match, len(groups))
	for i, g := range groups {
		extra := make(map[string]float64, len(aggs))
		for j, a := range aggs {
			extra[a.alias] = a.result(g, j)
		}
		matches[i] = searchd.Match{
			ID:     g.id,
			Weight: g.weight,
			Attrs:  g.attrs,
			Group:  &searchd.Group{Value: g.value, Count: g.count, Extra: extra},
		}
	}
	less, err := groupOrder(o.GroupSort)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool { return less(&matches[i], &matches[j]) })

	r := &searchd.Result{TotalFound: len(matches), Total: len(matches)}
	offset, size := window(o)
	if offset > len(matches) {
		offset = len(matches)
	}
	end := offset + size
	if end > len(matches) {
		end = len(matches)
	}
	r.Matches = matches[offset:end]
	return r, nil
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (a aggregate) eval(attrs map[string][]string) float64 {
	x := 1.0
	for _, attr := range a.attrs {
		vals := attrs[attr]
		if len(vals) == 0 {
			return 0
		}
		f, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return 0
		}
		x *= f
	}
	return x
}

func (a aggregate) result(g *group, i int) float64 {
	switch a.fn {
	case "avg":
		return g.sums[i] / float64(g.count)
	case "min":
		return g.mins[i]
	case "max":
		return g.maxs[i]
	default:
		return g.sums[i]
	}
}

// groupValue applies fn to a raw attribute value. Date functions read a unix
// timestamp and return YYYYMMDD, YYYYDDD (first day of the week), YYYYMM or YYYY.
func groupValue(raw string, fn searchd.GroupFunc) (string, error) {
	if fn == "" || fn == searchd.GroupByAttr {
		return raw, nil
	}
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", fmt.Errorf("group function %s needs a timestamp, got '%s'", fn, raw)
	}
	t := time.Unix(int64(ts), 0).UTC()
	switch fn {
	case searchd.GroupByDay:
		return t.Format("20060102"), nil
	case searchd.GroupByWeek:
		start := t.AddDate(0, 0, -int(t.Weekday()))
		return fmt.Sprintf("%d%03d", start.Year(), start.YearDay()), nil
	case searchd.GroupByMonth:
		return t.Format("200601"), nil
	case searchd.GroupByYear:
		return t.Format("2006"), nil
	default:
		return "", fmt.Errorf("unknown group function '%s'", fn)
	}
}

// groupOrder parses a group sort clause such as "@count desc, @groupby asc".
// Ties are broken by count then value so the order is deterministic.
func groupOrder(clause string) (func(a, b *searchd.Match) bool, error) {
	type key struct {
		name string
		desc bool
	}
	var keys []key
	for _, part := range strings.Split(clause, ",") {
		f := strings.Fields(part)
		if len(f) == 0 {
			continue
		}
		if len(f) > 2 || len(f) == 2 && !strings.EqualFold(f[1], "asc") && !strings.EqualFold(f[1], "desc") {
			return nil, fmt.Errorf("invalid group sort clause '%s'", clause)
		}
		k := key{name: f[0], desc: len(f) < 2 || strings.EqualFold(f[1], "desc")}
		if k.name == "@group" {
			k.name = searchd.AttrGroupBy
		}
		keys = append(keys, k)
	}
	keys = append(keys, key{name: searchd.AttrCount, desc: true}, key{name: searchd.AttrGroupBy})

	return func(a, b *searchd.Match) bool {
		for _, k := range keys {
			c := compareGroups(a, b, k.name)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	}, nil
}

func compareGroups(a, b *searchd.Match, name string) int {
	switch name {
	case searchd.AttrCount:
		return cmpFloat(float64(a.Group.Count), float64(b.Group.Count))
	case searchd.AttrGroupBy:
		return compareValues(a.Group.Value, b.Group.Value)
	case searchd.AttrWeight:
		return cmpFloat(a.Weight, b.Weight)
	case searchd.AttrGroupFunc:
		return cmpFloat(groupFunc(a.Group), groupFunc(b.Group))
	default:
		if _, ok := a.Group.Extra[name]; ok {
			return cmpFloat(a.Group.Extra[name], b.Group.Extra[name])
		}
		return compareValues(a.Attr(name), b.Attr(name))
	}
}

// groupFunc is the @groupfunc alias, defaulting to the count.
func groupFunc(g *searchd.Group) float64 {
	if v, ok := g.Extra[searchd.AttrGroupFunc]; ok {
		return v
	}
	return float64(g.Count)
}

// compareValues compares numerically when both values are numbers.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return cmpFloat(fa, fb)
	}
	return strings.Compare(a, b)
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
