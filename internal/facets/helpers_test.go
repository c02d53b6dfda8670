package facets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// scriptedEngine answers grouped requests with the result registered for the
// grouped attribute.
type scriptedEngine struct {
	byAttr  map[string]searchd.Result
	batches [][]searchd.Request
}

func (e *scriptedEngine) Execute(_ context.Context, reqs []searchd.Request) ([]*searchd.Result, error) {
	e.batches = append(e.batches, reqs)
	out := make([]*searchd.Result, len(reqs))
	for i, r := range reqs {
		res, ok := e.byAttr[r.Options.GroupBy]
		if !ok {
			res = searchd.Result{Time: 0.01}
		}
		out[i] = &res
	}
	return out, nil
}

func groups(pairs ...interface{}) []searchd.Match {
	var m []searchd.Match
	for i := 0; i+1 < len(pairs); i += 2 {
		m = append(m, searchd.Match{
			ID:    "doc",
			Group: &searchd.Group{Value: pairs[i].(string), Count: pairs[i+1].(int)},
		})
	}
	return m
}

func newEngine() *scriptedEngine {
	return &scriptedEngine{byAttr: map[string]searchd.Result{
		"actor_attr": {
			Time: 0.02, Total: 3, TotalFound: 3,
			Matches: groups("1", 5, "2", 2, "3", 1),
		},
		"genre_attr": {
			Time: 0.01, Total: 2, TotalFound: 2,
			Matches: groups("11", 4, "12", 3),
		},
	}}
}

// newTermStore creates actor and genre term tables whose ids match newEngine.
func newTermStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "terms.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, tbl := range []struct{ table, col string }{{"actor_terms", "actor"}, {"genre_terms", "genre"}} {
		if err := s.EnsureTermTable(ctx, tbl.table, tbl.col); err != nil {
			t.Fatalf("EnsureTermTable: %v", err)
		}
	}
	for _, a := range []string{"Alfred Hitchcock", "James Stewart", "Grace Kelly"} {
		if _, err := s.TermID(ctx, "actor_terms", "actor", a); err != nil {
			t.Fatalf("TermID: %v", err)
		}
	}
	db := s.DB()
	for id, g := range map[int]string{11: "Drama", 12: "Thriller"} {
		if _, err := db.ExecContext(ctx, "insert into genre_terms (id, genre) values (?, ?)", id, g); err != nil {
			t.Fatalf("insert genre: %v", err)
		}
	}
	return s
}
