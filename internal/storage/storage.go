// Package storage is the relational row store: display rows for search hits and
// facet terms, fetched by id in the order the ids were given.
package storage

import (
	"context"
	"errors"
	"regexp"
)

// IDPlaceholder is replaced by the list of ids in a fetch expression, e.g.
// "select id, actor from actor_terms where id in ($id)".
const IDPlaceholder = "$id"

// ErrRowCount is returned when a fetch does not yield exactly one row per id.
var ErrRowCount = errors.New("storage: row count does not match id count")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is one fetched row with its columns in select order.
type Row struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// Get returns the value of the named column.
func (r Row) Get(col string) (string, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return "", false
}

// Last returns the value of the last column.
func (r Row) Last() string {
	if len(r.Values) == 0 {
		return ""
	}
	return r.Values[len(r.Values)-1]
}

// Map returns the row as column → value.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// RowFetcher returns one row per id, in the order of ids. With an empty
// expression each row is just {id}.
type RowFetcher interface {
	FetchRows(ctx context.Context, expr string, ids []string) ([]Row, error)
}

// Storage is the row store written by the indexer and read by searches.
type Storage interface {
	RowFetcher

	EnsureDocumentTable(ctx context.Context, columns []string) error
	UpsertDocument(ctx context.Context, id string, values map[string]string) error
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int64, error)

	EnsureTermTable(ctx context.Context, table, column string) error
	TermID(ctx context.Context, table, column, term string) (int64, error)

	Close() error
}

// TrivialRows returns a {id} row per id.
func TrivialRows(ids []string) []Row {
	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{Columns: []string{"id"}, Values: []string{id}}
	}
	return rows
}
