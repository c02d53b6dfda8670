package query

import (
	"sort"
	"strings"

	"github.com/hyperjump/facetsearch/pkg/utils"
)

// MultiFieldQuery lets the user search within specific fields and therefore
// refine by facet values. Terms keep their insertion order and are unique by
// identity (see QueryTerm).
//
// A query must be parsed before it is passed to a facet or a search client.
type MultiFieldQuery struct {
	fieldMap FieldMap
	terms    []*QueryTerm

	// AllowEmpty lets an empty engine query go out as "", which the engine
	// treats as a full scan. When false an empty query is sent as " ".
	AllowEmpty bool
}

// New returns an empty query using the given user → engine field map.
func New(fieldMap map[string]string) *MultiFieldQuery {
	return &MultiFieldQuery{fieldMap: NewFieldMap(fieldMap)}
}

// Parse returns a query parsed from s with the given field map.
func Parse(s string, fieldMap map[string]string) *MultiFieldQuery {
	q := New(fieldMap)
	q.Parse(s)
	return q
}

// Parser creates parsed queries sharing one field map.
type Parser struct {
	FieldMap   map[string]string
	AllowEmpty bool
}

// Parse returns a new query parsed from s.
func (p *Parser) Parse(s string) *MultiFieldQuery {
	q := Parse(s, p.FieldMap)
	q.AllowEmpty = p.AllowEmpty
	return q
}

// Parse resets the query and scans s left to right for terms. Fragments that
// hold no term are dropped.
func (q *MultiFieldQuery) Parse(s string) {
	q.terms = nil
	for _, m := range termPattern.FindAllStringSubmatch(s, -1) {
		if t, ok := termFromMatch(m, q.fieldMap); ok {
			q.Add(t)
		}
	}
}

// FieldMap returns the field map of the query.
func (q *MultiFieldQuery) FieldMap() FieldMap { return q.fieldMap }

// NewTerm parses a single term fragment with the query's field map.
func (q *MultiFieldQuery) NewTerm(fragment string) (*QueryTerm, bool) {
	return ParseTerm(fragment, q.fieldMap)
}

// Derive returns a query parsed from s with the same field map and settings.
func (q *MultiFieldQuery) Derive(s string) *MultiFieldQuery {
	o := q.empty()
	o.Parse(s)
	return o
}

// Add appends t. An existing term with the same identity is removed first, so
// re-adding a term moves it to the end.
func (q *MultiFieldQuery) Add(t *QueryTerm) {
	if t == nil {
		return
	}
	q.Remove(t)
	q.terms = append(q.terms, t)
}

// AddString parses fragment and adds the resulting term, if any.
func (q *MultiFieldQuery) AddString(fragment string) {
	if t, ok := q.NewTerm(fragment); ok {
		q.Add(t)
	}
}

// Remove deletes the term with the identity of t. It is a no-op when absent.
func (q *MultiFieldQuery) Remove(t *QueryTerm) {
	if i := q.index(t); i >= 0 {
		q.terms = append(q.terms[:i], q.terms[i+1:]...)
	}
}

// RemoveString parses fragment and removes the resulting term, if any.
func (q *MultiFieldQuery) RemoveString(fragment string) {
	if t, ok := q.NewTerm(fragment); ok {
		q.Remove(t)
	}
}

func (q *MultiFieldQuery) index(t *QueryTerm) int {
	for i, qt := range q.terms {
		if qt.Equal(t) {
			return i
		}
	}
	return -1
}

// Contains reports whether a term with the identity of t is present.
func (q *MultiFieldQuery) Contains(t *QueryTerm) bool {
	return q.index(t) >= 0
}

// ContainsString parses fragment and reports whether its term is present.
func (q *MultiFieldQuery) ContainsString(fragment string) bool {
	t, ok := q.NewTerm(fragment)
	return ok && q.Contains(t)
}

// Lookup returns the stored term with the identity of fragment's term.
func (q *MultiFieldQuery) Lookup(fragment string) (*QueryTerm, bool) {
	t, ok := q.NewTerm(fragment)
	if !ok {
		return nil, false
	}
	i := q.index(t)
	if i < 0 {
		return nil, false
	}
	return q.terms[i], true
}

// Selected reports whether the term of fragment is present and not excluded.
func (q *MultiFieldQuery) Selected(fragment string) bool {
	t, ok := q.Lookup(fragment)
	return ok && !t.IsExcluded()
}

// Term returns the i-th term in insertion order.
func (q *MultiFieldQuery) Term(i int) *QueryTerm { return q.terms[i] }

// Terms returns the terms in insertion order.
func (q *MultiFieldQuery) Terms() []*QueryTerm {
	return append([]*QueryTerm(nil), q.terms...)
}

// Len returns the number of terms.
func (q *MultiFieldQuery) Len() int { return len(q.terms) }

// User is the query as manipulated by the user.
func (q *MultiFieldQuery) User() string {
	parts := make([]string, len(q.terms))
	for i, t := range q.terms {
		parts[i] = t.User()
	}
	return strings.Join(parts, " ")
}

// Engine is the query string sent to the search engine. It is never empty
// unless AllowEmpty is set.
func (q *MultiFieldQuery) Engine() string {
	parts := make([]string, len(q.terms))
	for i, t := range q.terms {
		parts[i] = t.Engine()
	}
	s := utils.Strips(strings.Join(parts, " "))
	if s == `(@* "")` {
		s = ""
	}
	if s == "" && !q.AllowEmpty {
		s = " "
	}
	return s
}

// Canonical is a unique representation of the query: included terms sorted by
// (user field, lowercased text).
func (q *MultiFieldQuery) Canonical() string {
	sorted := q.Terms()
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	parts := make([]string, len(sorted))
	for i, t := range sorted {
		parts[i] = t.Canonical()
	}
	return utils.Strips(strings.Join(parts, " "))
}

// Count returns how many included terms search field, by user or engine name.
func (q *MultiFieldQuery) Count(field string) int {
	field = strings.ToLower(field)
	n := 0
	for _, t := range q.terms {
		if t.IsExcluded() {
			continue
		}
		if t.UserField == field || t.EngineField == field {
			n++
		}
	}
	return n
}

// Equal compares canonical forms.
func (q *MultiFieldQuery) Equal(o *MultiFieldQuery) bool {
	return q.Canonical() == o.Canonical()
}

func (q *MultiFieldQuery) String() string { return q.User() }

// Clone returns a deep copy of q.
func (q *MultiFieldQuery) Clone() *MultiFieldQuery {
	c := q.empty()
	c.terms = make([]*QueryTerm, len(q.terms))
	for i, t := range q.terms {
		c.terms[i] = t.clone()
	}
	return c
}

func (q *MultiFieldQuery) empty() *MultiFieldQuery {
	return &MultiFieldQuery{fieldMap: q.fieldMap, AllowEmpty: q.AllowEmpty}
}

// And returns the terms of q also present in o, with q's order and status.
func (q *MultiFieldQuery) And(o *MultiFieldQuery) *MultiFieldQuery {
	r := q.empty()
	for _, t := range q.terms {
		if o.Contains(t) {
			r.terms = append(r.terms, t.clone())
		}
	}
	return r
}

// Or is the union of q and o. Alias of Plus.
func (q *MultiFieldQuery) Or(o *MultiFieldQuery) *MultiFieldQuery { return q.Plus(o) }

// Plus returns q with the terms of o appended. Terms already in q keep their
// status and position, so the left operand wins duplicates.
func (q *MultiFieldQuery) Plus(o *MultiFieldQuery) *MultiFieldQuery {
	r := q.Clone()
	for _, t := range o.terms {
		if !r.Contains(t) {
			r.terms = append(r.terms, t.clone())
		}
	}
	return r
}

// Sub returns q without the terms of o.
func (q *MultiFieldQuery) Sub(o *MultiFieldQuery) *MultiFieldQuery {
	r := q.Clone()
	for _, t := range o.terms {
		r.Remove(t)
	}
	return r
}

// Filter returns the terms for which keep returns true.
func (q *MultiFieldQuery) Filter(keep func(*QueryTerm) bool) *MultiFieldQuery {
	r := q.empty()
	for _, t := range q.terms {
		if keep(t) {
			r.terms = append(r.terms, t.clone())
		}
	}
	return r
}

// Toggle flips the status of the term of fragment in place.
func (q *MultiFieldQuery) Toggle(fragment string) bool {
	return q.apply(fragment, (*QueryTerm).Toggle)
}

// ToggleOn includes the term of fragment in place.
func (q *MultiFieldQuery) ToggleOn(fragment string) bool {
	return q.apply(fragment, (*QueryTerm).ToggleOn)
}

// ToggleOff excludes the term of fragment in place.
func (q *MultiFieldQuery) ToggleOff(fragment string) bool {
	return q.apply(fragment, (*QueryTerm).ToggleOff)
}

func (q *MultiFieldQuery) apply(fragment string, fn func(*QueryTerm)) bool {
	t, ok := q.Lookup(fragment)
	if ok {
		fn(t)
	}
	return ok
}

// QueryToggle returns a copy of q with exactly the term t toggled. The copy is
// returned unchanged when t is absent.
func (q *MultiFieldQuery) QueryToggle(t *QueryTerm) *MultiFieldQuery {
	r := q.Clone()
	if i := r.index(t); i >= 0 {
		r.terms[i].Toggle()
	}
	return r
}

// QueryToggleString is QueryToggle for a term fragment.
func (q *MultiFieldQuery) QueryToggleString(fragment string) *MultiFieldQuery {
	t, ok := q.NewTerm(fragment)
	if !ok {
		return q.Clone()
	}
	return q.QueryToggle(t)
}

// ToPrettyURL encodes the query as a pretty url.
func (q *MultiFieldQuery) ToPrettyURL(opts URLOptions) string {
	return ToPrettyURL(q, opts)
}
