// Package apptest builds a fully wired application over a small movie
// catalogue for tests.
package apptest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/facetsearch/internal/app"
	"github.com/hyperjump/facetsearch/internal/config"
	"github.com/hyperjump/facetsearch/internal/facets"
)

// Movies is the catalogue, one JSON record per line. Alfred Hitchcock plays in
// more dramas than anybody else.
const Movies = `{"id": 1, "title": "Rear Window", "genre": ["Drama", "Mystery", "Thriller"], "actor": ["James Stewart", "Grace Kelly", "Alfred Hitchcock"], "director": ["Alfred Hitchcock"], "year": 1954, "votes": 400, "plot": "A photographer in a wheelchair spies on his neighbours."}
{"id": 2, "title": "Vertigo", "genre": ["Drama", "Mystery", "Romance"], "actor": ["James Stewart", "Kim Novak", "Alfred Hitchcock"], "director": ["Alfred Hitchcock"], "year": 1958, "votes": 350, "plot": "A retired detective suffering from acrophobia is hired to follow a woman."}
{"id": 3, "title": "The Birds", "genre": ["Drama", "Horror"], "actor": ["Tippi Hedren", "Rod Taylor", "Alfred Hitchcock"], "director": ["Alfred Hitchcock"], "year": 1963, "votes": 180, "plot": "Birds begin to attack the people of a small town."}
{"id": 4, "title": "Notorious", "genre": ["Drama", "Romance", "Thriller"], "actor": ["Cary Grant", "Ingrid Bergman", "Alfred Hitchcock"], "director": ["Alfred Hitchcock"], "year": 1946, "votes": 100, "plot": "A spy falls for the woman he recruits."}
{"id": 5, "title": "It's a Wonderful Life", "genre": ["Drama", "Family", "Fantasy"], "actor": ["James Stewart", "Donna Reed"], "director": ["Frank Capra"], "year": 1946, "votes": 420, "plot": "An angel shows a banker what life would be like without him."}
{"id": 6, "title": "Casablanca", "genre": ["Drama", "Romance", "War"], "actor": ["Humphrey Bogart", "Ingrid Bergman"], "director": ["Michael Curtiz"], "year": 1942, "votes": 550, "plot": "A cynical nightclub owner protects an old flame."}
{"id": 7, "title": "Blade Runner", "genre": ["Sci-Fi", "Thriller"], "actor": ["Harrison Ford", "Rutger Hauer"], "director": ["Ridley Scott"], "year": 1982, "votes": 700, "plot": "A blade runner must pursue replicants."}
{"id": 8, "title": "Star Wars", "genre": ["Action", "Adventure", "Sci-Fi"], "actor": ["Harrison Ford", "Mark Hamill"], "director": ["George Lucas"], "year": 1977, "votes": 1200, "plot": "A farm boy joins a rebellion against an empire."}
{"id": 9, "title": "The Fugitive", "genre": ["Action", "Drama", "Thriller"], "actor": ["Harrison Ford", "Tommy Lee Jones"], "director": ["Andrew Davis"], "year": 1993, "votes": 300, "plot": "A surgeon wrongly convicted of murder escapes custody."}
`

// Config returns a configuration keeping all state under dir, with an
// in-memory cache and genre, actor, director and year facets.
func Config(dir string) *config.Config {
	none := ""
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "db", "movies.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
			DataDir:        filepath.Join(dir, "jsonl"),
		},
		Engine: config.EngineConfig{
			Fields:            []string{"title", "genre", "actor", "director", "plot"},
			NumericAttributes: []string{"year_attr", "votes"},
		},
		Hits: config.HitsConfig{SplitFields: []string{"genre", "actor", "director"}},
		Facets: []facets.Config{
			{Name: "genre"},
			{Name: "actor"},
			{Name: "director"},
			{Name: "year", SQLTable: &none},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// New builds the application from the configuration returned by Config,
// after applying mutate, and indexes Movies. Everything is closed when the
// test ends.
func New(t testing.TB, mutate ...func(*config.Config)) *app.Components {
	t.Helper()
	dir := t.TempDir()
	cfg := Config(dir)
	for _, m := range mutate {
		m(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	c, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(c.Close)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfg.Storage.DataDir, "movies.jsonl")
	if err := os.WriteFile(path, []byte(Movies), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Indexer.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	return c
}
