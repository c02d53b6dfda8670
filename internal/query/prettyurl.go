package query

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OrderParam is the url query parameter recording the insertion order of terms.
const OrderParam = "ot"

// maxOrderTerms bounds the terms an order string can describe with one digit each.
const maxOrderTerms = 10

var (
	pathPattern  = regexp.MustCompile(`([\p{L}\p{N}_]+)=([^/]+)|([^/]+)`)
	orderPattern = regexp.MustCompile(`(?:\?|&|^)ot=(\d+)`)
)

// URLOptions control how a query is turned into a pretty url.
type URLOptions struct {
	// Root is joined in front of the generated path, e.g. "/search/".
	Root string
	// KeepOrder records the insertion order of terms in the "ot" parameter.
	KeepOrder bool
	// Params are extra url query parameters kept alongside "ot".
	Params url.Values
}

// ToPrettyURL encodes q as a path of "field=term1|term2" segments sorted by field.
// Wildcard terms form a bare segment and excluded terms are prefixed with "*".
func ToPrettyURL(q *MultiFieldQuery, opts URLOptions) string {
	segments := make(map[string]string)
	for _, t := range q.terms {
		f := t.UserField
		seg, ok := segments[f]
		switch {
		case !ok && f == WildcardField:
			seg = ""
		case !ok:
			seg = f + "="
		default:
			seg += "|"
		}
		if t.IsExcluded() {
			seg += "*"
		}
		segments[f] = seg + t.Text
	}
	fields := make([]string, 0, len(segments))
	for f := range segments {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = segments[f]
	}
	path := quotePlus(strings.Join(parts, "/")+"/", "/|*=")

	params := url.Values{}
	for k, v := range opts.Params {
		params[k] = append([]string(nil), v...)
	}
	if opts.KeepOrder {
		if order := termOrder(q); len(order) > 1 {
			params.Set(OrderParam, order)
		}
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return joinRoot(opts.Root, path)
}

// termOrder lists, for each term sorted by field, its index in insertion order.
func termOrder(q *MultiFieldQuery) string {
	if len(q.terms) > maxOrderTerms {
		return ""
	}
	idx := make([]int, len(q.terms))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return q.terms[idx[a]].UserField < q.terms[idx[b]].UserField
	})
	var b strings.Builder
	for _, i := range idx {
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// FromPrettyURL decodes a pretty url into the user form of a query, e.g.
// "(@actor harrison ford) (@-genre drama)". Segments of root are ignored.
// The term order is taken from order, or else from the "ot" url parameter.
func FromPrettyURL(rawURL, root, order string) string {
	rootSegments := strings.Split(root, "/")
	path, rawQuery := splitURL(rawURL)

	var terms []string
	for _, m := range pathPattern.FindAllStringSubmatch(path, -1) {
		field, values, all := m[1], m[2], m[3]
		if all != "" && !contains(rootSegments, all) {
			values, field = all, WildcardField
		}
		if values == "" {
			continue
		}
		for _, v := range strings.Split(values, "|") {
			if v == "" {
				continue
			}
			status := Included
			if v[0] == '*' {
				status, v = Excluded, v[1:]
			}
			terms = append(terms, fmt.Sprintf("(@%s%s %s)", status, field, v))
		}
	}

	if order == "" {
		if m := orderPattern.FindStringSubmatch(rawQuery); m != nil {
			order = m[1]
		}
	}
	if order != "" {
		rank := make(map[string]int)
		for i := 0; i < len(terms) && i < len(order); i++ {
			rank[terms[i]] = int(order[i] - '0')
		}
		sort.SliceStable(terms, func(a, b int) bool { return rank[terms[a]] < rank[terms[b]] })
	}
	return strings.Join(terms, " ")
}

// ParsePrettyURL decodes a pretty url into a query using fieldMap.
func ParsePrettyURL(rawURL, root string, fieldMap map[string]string) *MultiFieldQuery {
	return Parse(FromPrettyURL(rawURL, root, ""), fieldMap)
}

func splitURL(rawURL string) (path, rawQuery string) {
	escaped := rawURL
	if i := strings.IndexByte(escaped, '#'); i >= 0 {
		escaped = escaped[:i]
	}
	if i := strings.IndexByte(escaped, '?'); i >= 0 {
		escaped, rawQuery = escaped[:i], escaped[i+1:]
	}
	if i := strings.Index(escaped, "://"); i >= 0 {
		rest := escaped[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			escaped = rest[j:]
		} else {
			escaped = "/"
		}
	}
	path, err := url.QueryUnescape(escaped)
	if err != nil {
		path = strings.ReplaceAll(escaped, "+", " ")
	}
	return path, rawQuery
}

// joinRoot resolves path against root the way a relative reference is resolved
// against a base directory.
func joinRoot(root, path string) string {
	if root == "" {
		return path
	}
	if i := strings.LastIndexByte(root, '/'); i >= 0 {
		return root[:i+1] + path
	}
	return path
}

// quotePlus percent-encodes s, turning spaces into "+" and leaving the
// characters in safe untouched.
func quotePlus(s, safe string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case isUnreserved(c) || strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
