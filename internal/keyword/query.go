package keyword

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// clausePattern matches "@field words" up to the next "@", "(" or ")", or a bare run of words.
var clausePattern = regexp.MustCompile(`@(\*|[\p{L}\p{N}_]+)\s+([^@()]*)|([^@()]+)`)

const allFields = "*"

type clause struct {
	field string
	text  string
}

// parseQuery splits an engine query into field clauses. The empty string means
// a full scan; a query holding no words matches nothing.
func parseQuery(s string) (clauses []clause, fullScan bool) {
	if s == "" {
		return nil, true
	}
	for _, m := range clausePattern.FindAllStringSubmatch(s, -1) {
		field, text := strings.ToLower(m[1]), m[2]
		if m[3] != "" {
			field, text = allFields, m[3]
		}
		text = strings.Join(strings.Fields(strings.ReplaceAll(text, `"`, " ")), " ")
		if text == "" {
			continue
		}
		clauses = append(clauses, clause{field: field, text: text})
	}
	return clauses, false
}

// buildQuery turns clauses into a Bleve query. Words of a clause must all match;
// wildcard clauses may match each word in any full-text field.
func buildQuery(clauses []clause, fullScan bool, schema Schema, weights map[string]float64) (blevequery.Query, error) {
	if fullScan {
		return bleve.NewMatchAllQuery(), nil
	}
	if len(clauses) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}
	var parts []blevequery.Query
	for _, c := range clauses {
		if c.field == allFields {
			for _, w := range strings.Fields(c.text) {
				alts := make([]blevequery.Query, 0, len(schema.Fields))
				for _, f := range schema.Fields {
					alts = append(alts, fieldMatch(w, f, weights))
				}
				parts = append(parts, bleve.NewDisjunctionQuery(alts...))
			}
			continue
		}
		if !schema.isField(c.field) {
			return nil, fmt.Errorf("no field '%s' found in schema", c.field)
		}
		parts = append(parts, fieldMatch(c.text, c.field, weights))
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

func fieldMatch(text, field string, weights map[string]float64) blevequery.Query {
	q := bleve.NewMatchQuery(text)
	q.SetField(field)
	q.SetOperator(blevequery.MatchQueryOperatorAnd)
	if w, ok := weights[field]; ok && w > 0 {
		q.SetBoost(w)
	}
	return q
}

// queryWords returns the distinct lowercased words of the clauses in order.
func queryWords(clauses []clause) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, c := range clauses {
		for _, w := range strings.Fields(strings.ToLower(c.text)) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	return words
}
