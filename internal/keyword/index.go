// Package keyword provides the Bleve-backed full-text engine serving searchd requests.
package keyword

import (
	"context"

	"github.com/hyperjump/facetsearch/internal/searchd"
)

// Schema declares what the engine indexes.
type Schema struct {
	// Fields are full-text fields searchable with "@field words".
	Fields []string
	// Attributes are stored keyword attributes usable for grouping and sorting.
	// They may hold several values per document.
	Attributes []string
	// NumericAttributes are stored numeric attributes, e.g. years or unix timestamps.
	NumericAttributes []string
}

// Document is one record handed to the engine for indexing.
type Document struct {
	ID      string
	Fields  map[string]string
	Attrs   map[string][]string
	Numeric map[string][]float64
}

// Index is a searchd.Engine that can also be written to.
type Index interface {
	searchd.Engine
	Index(ctx context.Context, docs ...*Document) error
	Delete(ctx context.Context, ids ...string) error
	DocCount() (uint64, error)
	Close() error
}

func (s Schema) isField(name string) bool { return contains(s.Fields, name) }

func (s Schema) isAttr(name string) bool {
	return contains(s.Attributes, name) || contains(s.NumericAttributes, name)
}

func (s Schema) isNumeric(name string) bool { return contains(s.NumericAttributes, name) }

func (s Schema) attrs() []string {
	out := make([]string, 0, len(s.Attributes)+len(s.NumericAttributes))
	out = append(out, s.Attributes...)
	return append(out, s.NumericAttributes...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
