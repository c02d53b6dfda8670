// Package query provides the multi-field query representation used to search
// within specific fields and refine by facet values.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/facetsearch/pkg/utils"
)

// WildcardField is the field of a bare (unfielded) term.
const WildcardField = "*"

// Status tells whether a term is sent to the search engine.
type Status string

const (
	// Included terms are sent to the engine. "+" is never persisted, it is implicit.
	Included Status = ""
	// Excluded terms are kept for display but never sent to the engine.
	Excluded Status = "-"
)

// termPattern matches either "@[+-]field terms..." up to the next "@", "(" or ")",
// or a bare run of text.
var termPattern = regexp.MustCompile(`(?i)@(?P<status>[+-]?)(?P<field>[\p{L}\p{N}_]+|\*)\s+(?P<term>[^@()]+)|(?P<all>[^@()]+)`)

// hyphenWords matches a hyphen between two word characters, e.g. "science-fiction".
var hyphenWords = regexp.MustCompile(`([\p{L}\p{N}_])-([\p{L}\p{N}_])`)

// FieldMap maps user field names to engine field names, case-insensitively.
type FieldMap map[string]string

// NewFieldMap returns a lowercased copy of m.
func NewFieldMap(m map[string]string) FieldMap {
	fm := make(FieldMap, len(m))
	for k, v := range m {
		fm[strings.ToLower(k)] = strings.ToLower(v)
	}
	return fm
}

// Engine returns the engine name of a user field, or the field itself.
func (fm FieldMap) Engine(field string) string {
	if v, ok := fm[field]; ok {
		return v
	}
	return field
}

// User returns the user name of an engine field, or the field itself.
// When several user fields map to the same engine field the smallest name wins.
func (fm FieldMap) User(field string) string {
	user, found := field, false
	for k, v := range fm {
		if v == field && (!found || k < user) {
			user, found = k, true
		}
	}
	return user
}

// QueryTerm is a single (status, field, text) part of a multi-field query.
// Two terms are the same term when their user field and lowercased text match;
// the status is not part of the identity.
type QueryTerm struct {
	Status      Status
	UserField   string
	EngineField string
	Text        string
}

// NewQueryTerm builds a term. The field is looked up in fm (forward for the engine
// field, reverse for the user field) and lowercased; the text is trimmed.
func NewQueryTerm(status Status, field, text string, fm FieldMap) *QueryTerm {
	field = strings.ToLower(strings.TrimSpace(field))
	if status != Excluded {
		status = Included
	}
	return &QueryTerm{
		Status:      status,
		UserField:   strings.ToLower(fm.User(field)),
		EngineField: strings.ToLower(fm.Engine(field)),
		Text:        utils.Strips(text),
	}
}

// ParseTerm parses the first term found in fragment. It returns false when the
// fragment holds no term or the term text is empty.
func ParseTerm(fragment string, fm FieldMap) (*QueryTerm, bool) {
	m := termPattern.FindStringSubmatch(fragment)
	if m == nil {
		return nil, false
	}
	return termFromMatch(m, fm)
}

func termFromMatch(m []string, fm FieldMap) (*QueryTerm, bool) {
	status, field, text, all := m[1], m[2], m[3], m[4]
	if all != "" {
		if strings.TrimSpace(all) == "" {
			return nil, false
		}
		text, field = all, WildcardField
	}
	if strings.TrimSpace(field) == "" {
		return nil, false
	}
	t := NewQueryTerm(Status(status), field, text, fm)
	if t.Text == "" {
		return nil, false
	}
	return t, true
}

// User renders the term as manipulated by the user: (@[-]field text).
func (t *QueryTerm) User() string {
	return fmt.Sprintf("(@%s%s %s)", t.Status, t.UserField, t.Text)
}

// Engine renders the term as sent to the search engine. Excluded terms render empty.
func (t *QueryTerm) Engine() string {
	if t.Status == Excluded {
		return ""
	}
	text := hyphenWords.ReplaceAllString(t.Text, "$1 $2")
	return fmt.Sprintf("(@%s %s)", t.EngineField, text)
}

// Canonical is the lowercased engine form.
func (t *QueryTerm) Canonical() string {
	return strings.ToLower(strings.TrimSpace(t.Engine()))
}

// Equal reports whether t and o share the same identity.
func (t *QueryTerm) Equal(o *QueryTerm) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.UserField == o.UserField && strings.EqualFold(t.Text, o.Text)
}

// Key is the hashable identity of the term.
func (t *QueryTerm) Key() string {
	return t.UserField + "\x00" + strings.ToLower(t.Text)
}

// Less orders terms by (user field, lowercased text).
func (t *QueryTerm) Less(o *QueryTerm) bool {
	if t.UserField != o.UserField {
		return t.UserField < o.UserField
	}
	return strings.ToLower(t.Text) < strings.ToLower(o.Text)
}

// Toggle flips the term between excluded and included.
func (t *QueryTerm) Toggle() {
	if t.Status == Excluded {
		t.Status = Included
	} else {
		t.Status = Excluded
	}
}

// ToggleOn includes the term.
func (t *QueryTerm) ToggleOn() { t.Status = Included }

// ToggleOff excludes the term.
func (t *QueryTerm) ToggleOff() { t.Status = Excluded }

// IsExcluded reports whether the term is excluded.
func (t *QueryTerm) IsExcluded() bool { return t.Status == Excluded }

func (t *QueryTerm) clone() *QueryTerm {
	c := *t
	return &c
}

func (t *QueryTerm) String() string { return t.User() }
