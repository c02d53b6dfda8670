package keyword

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/facetsearch/internal/searchd"
)

var testSchema = Schema{
	Fields:            []string{"title", "genres", "actors"},
	Attributes:        []string{"genre_attr", "actor_attr"},
	NumericAttributes: []string{"year_attr", "votes", "released"},
}

func newTestEngine(t *testing.T) *BleveEngine {
	t.Helper()
	e, err := NewBleveEngine(filepath.Join(t.TempDir(), "bleve"), testSchema)
	if err != nil {
		t.Fatalf("NewBleveEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	docs := []*Document{
		movie("1", "Rear Window", []string{"Drama", "Thriller"}, []string{"James Stewart", "Grace Kelly"}, 1954, 100, 0),
		movie("2", "Vertigo", []string{"Drama", "Mystery"}, []string{"James Stewart", "Kim Novak"}, 1958, 300, 86400*40),
		movie("3", "The Birds", []string{"Horror", "Drama"}, []string{"Tippi Hedren"}, 1963, 50, 86400*400),
		movie("4", "Blade Runner", []string{"Sci-Fi"}, []string{"Harrison Ford"}, 1982, 500, 86400*4000),
	}
	if err := e.Index(context.Background(), docs...); err != nil {
		t.Fatalf("Index: %v", err)
	}
	return e
}

func movie(id, title string, genres, actors []string, year, votes, released float64) *Document {
	return &Document{
		ID: id,
		Fields: map[string]string{
			"title":  title,
			"genres": strings.Join(genres, " "),
			"actors": strings.Join(actors, " "),
		},
		Attrs: map[string][]string{
			"genre_attr": genres,
			"actor_attr": actors,
		},
		Numeric: map[string][]float64{
			"year_attr": {year},
			"votes":     {votes},
			"released":  {released},
		},
	}
}

func run(t *testing.T, e *BleveEngine, query string, opts searchd.Options) *searchd.Result {
	t.Helper()
	res, err := e.Execute(context.Background(), []searchd.Request{{Index: "*", Query: query, Options: opts}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
	return res[0]
}

func TestBleveEngine_FieldQuery(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"field group", "(@actors james stewart)", 2},
		{"words must all match", "(@actors james novak)", 1},
		{"bare words any field", "drama stewart", 2},
		{"wildcard field", "(@* drama) (@genres mystery)", 1},
		{"stop words are kept", "the birds", 1},
		{"full scan", "", 4},
		{"placeholder matches nothing", " ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, e, tt.query, searchd.DefaultOptions())
			if r.Error != "" {
				t.Fatalf("unexpected error: %s", r.Error)
			}
			if r.TotalFound != tt.want {
				t.Errorf("TotalFound = %d, want %d", r.TotalFound, tt.want)
			}
			if r.Time <= 0 {
				t.Errorf("Time = %v, want > 0", r.Time)
			}
		})
	}
}

func TestBleveEngine_UnknownFieldIsRequestError(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Execute(context.Background(), []searchd.Request{
		{Query: "(@nope x)", Options: searchd.DefaultOptions()},
		{Query: "drama", Options: searchd.DefaultOptions()},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res[0].Error == "" {
		t.Error("expected an error for an unknown field")
	}
	if res[1].Error != "" || res[1].TotalFound != 3 {
		t.Errorf("second request should succeed, got %+v", res[1])
	}
}

func TestBleveEngine_SortModes(t *testing.T) {
	e := newTestEngine(t)
	opts := searchd.DefaultOptions()
	opts.SortMode = searchd.SortAttrDesc
	opts.SortClause = "year_attr"
	r := run(t, e, "", opts)
	if len(r.Matches) != 4 || r.Matches[0].ID != "4" || r.Matches[3].ID != "1" {
		t.Errorf("attr_desc order = %v", ids(r))
	}

	opts.SortMode = searchd.SortExtended
	opts.SortClause = "votes asc"
	r = run(t, e, "", opts)
	if r.Matches[0].ID != "3" {
		t.Errorf("extended order = %v", ids(r))
	}
	if got := r.Matches[0].Attr("year_attr"); got != "1963" {
		t.Errorf("year_attr = %q, want 1963", got)
	}

	opts.SortClause = "nope desc"
	if r = run(t, e, "", opts); r.Error == "" {
		t.Error("expected an error for an unknown sort attribute")
	}
}

func TestBleveEngine_Limits(t *testing.T) {
	e := newTestEngine(t)
	opts := searchd.DefaultOptions()
	opts.Offset, opts.Limit = 1, 2
	r := run(t, e, "", opts)
	if len(r.Matches) != 2 || r.TotalFound != 4 {
		t.Errorf("matches = %d, total found = %d", len(r.Matches), r.TotalFound)
	}
	opts.Offset, opts.Limit, opts.MaxMatches = 0, 10, 3
	r = run(t, e, "", opts)
	if len(r.Matches) != 3 || r.Total != 3 || r.TotalFound != 4 {
		t.Errorf("max matches: matches = %d, total = %d, total found = %d", len(r.Matches), r.Total, r.TotalFound)
	}
}

func TestBleveEngine_GroupByCount(t *testing.T) {
	e := newTestEngine(t)
	opts := searchd.DefaultOptions()
	opts.Select = "@groupby, @count"
	opts.GroupBy, opts.GroupFunc, opts.GroupSort = "actor_attr", searchd.GroupByAttr, "@count desc"
	opts.Limit = 1

	r := run(t, e, "drama", opts)
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.TotalFound != 4 {
		t.Errorf("TotalFound = %d, want 4 groups", r.TotalFound)
	}
	if len(r.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(r.Matches))
	}
	g := r.Matches[0].Group
	if g.Value != "James Stewart" || g.Count != 2 {
		t.Errorf("top group = %+v, want James Stewart x2", g)
	}
}

func TestBleveEngine_GroupFuncAndSelect(t *testing.T) {
	e := newTestEngine(t)
	opts := searchd.DefaultOptions()
	opts.Select = "@groupby, @count, sum(votes) as @groupfunc"
	opts.GroupBy, opts.GroupSort = "genre_attr", "@groupfunc desc"

	r := run(t, e, "", opts)
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	top := r.Matches[0].Group
	if top.Value != "Sci-Fi" || top.Extra["@groupfunc"] != 500 {
		t.Errorf("top group = %+v, want Sci-Fi with 500 votes", top)
	}
	for _, m := range r.Matches {
		if m.Group.Value == "Drama" && m.Group.Extra["@groupfunc"] != 450 {
			t.Errorf("Drama votes = %v, want 450", m.Group.Extra["@groupfunc"])
		}
	}
}

func TestBleveEngine_GroupByYearOfTimestamp(t *testing.T) {
	e := newTestEngine(t)
	opts := searchd.DefaultOptions()
	opts.GroupBy, opts.GroupFunc, opts.GroupSort = "released", searchd.GroupByYear, "@groupby asc"
	r := run(t, e, "", opts)
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	var got []string
	for _, m := range r.Matches {
		got = append(got, m.Group.Value)
	}
	if strings.Join(got, ",") != "1970,1971,1980" {
		t.Errorf("groups = %v, want [1970 1971 1980]", got)
	}
	if r.Matches[0].Group.Count != 2 {
		t.Errorf("1970 count = %d, want 2", r.Matches[0].Group.Count)
	}
}

func TestBleveEngine_Delete(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Delete(context.Background(), "4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := e.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("DocCount = %d, want 3", n)
	}
}

func TestBleveEngine_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	e, err := NewBleveEngine(path, testSchema)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Index(context.Background(), movie("1", "Psycho", []string{"Horror"}, []string{"Anthony Perkins"}, 1960, 1, 0)); err != nil {
		t.Fatal(err)
	}
	_ = e.Close()

	e2, err := NewBleveEngine(path, testSchema)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = e2.Close() }()
	if r := run(t, e2, "psycho", searchd.DefaultOptions()); r.TotalFound != 1 {
		t.Errorf("TotalFound = %d after reopen, want 1", r.TotalFound)
	}
}

func ids(r *searchd.Result) []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.ID
	}
	return out
}
