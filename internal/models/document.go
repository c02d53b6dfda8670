// Package models defines the data records read by the indexer and the wire
// types of the search API.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IDField is the record field holding the document id.
const IDField = "id"

// Document is one record of a JSONL data file. Field values are strings,
// json.Number, bools, nil, or lists and objects of those.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// ParseDocument decodes a JSON object. The id is taken from its "id" field,
// which may be a string or a number, and is empty when absent.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	d := &Document{Fields: fields}
	if v, ok := fields[IDField]; ok {
		d.ID = scalar(v)
		delete(fields, IDField)
	}
	return d, nil
}

// Has reports whether the record has field name.
func (d *Document) Has(name string) bool {
	_, ok := d.Fields[name]
	return ok
}

// Strings returns the values of field name. A list yields one string per
// non-null element, a scalar one string, and null or a missing field none.
func (d *Document) Strings(name string) []string {
	v, ok := d.Fields[name]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return []string{scalar(v)}
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e != nil {
			out = append(out, scalar(e))
		}
	}
	return out
}

// Floats returns the values of field name as numbers.
func (d *Document) Floats(name string) ([]float64, error) {
	vals := d.Strings(name)
	out := make([]float64, 0, len(vals))
	for _, s := range vals {
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", name, s)
		}
		out = append(out, f)
	}
	return out, nil
}

// Columns returns the names of all fields, sorted.
func (d *Document) Columns() []string {
	cols := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Row flattens the record into column values. Lists are joined with sep.
func (d *Document) Row(sep string) map[string]string {
	row := make(map[string]string, len(d.Fields))
	for k := range d.Fields {
		row[k] = strings.Join(d.Strings(k), sep)
	}
	return row
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
