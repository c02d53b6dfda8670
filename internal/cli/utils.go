// Package cli renders search results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/facetsearch/internal/models"
	"github.com/hyperjump/facetsearch/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseFormat maps a flag value to a format. Anything but "json" is text.
func ParseFormat(s string) SearchOutputFormat {
	if strings.EqualFold(s, string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nQuery: %s\n", response.Query)
	fmt.Fprintf(w, "Found %d of %d results in %dms%s\n", len(response.Hits), response.TotalFound,
		response.QueryTime, cachedNote(response.Time))
	if response.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", response.Warning)
	}
	fmt.Fprintln(w)
	for _, hit := range response.Hits {
		writeOneHit(w, hit)
	}
	if len(response.Facets) == 0 {
		return
	}
	fmt.Fprintf(w, "--- Facets (%.3fs%s) ---\n", response.FacetTime, cachedNote(response.FacetTime))
	for _, f := range response.Facets {
		writeFacet(w, f)
	}
}

// cachedNote marks a zero engine time, which means the result came from cache.
func cachedNote(t float64) string {
	if t == 0 {
		return ", cached"
	}
	return ""
}

func writeOneHit(w io.Writer, hit *models.SearchHit) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Weight: %.4f | ID: %s\n", hit.Rank, hit.Weight, hit.ID)
	cols := make([]string, 0, len(hit.Values))
	for c := range hit.Values {
		if c == "id" || c == "updated_at" || strings.HasSuffix(c, "_highlighted") {
			continue
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		v := hit.Values[c]
		if list, ok := hit.Lists[c]; ok {
			v = strings.Join(list, ", ")
		}
		if hl, ok := hit.Values[c+"_highlighted"]; ok {
			v = hl
		}
		fmt.Fprintf(w, "%s: %s\n", c, utils.Truncate(v, 200))
	}
	fmt.Fprintln(w)
}

func writeFacet(w io.Writer, f *models.FacetResponse) {
	fmt.Fprintf(w, "%s (%d found)\n", f.Name, f.TotalFound)
	for _, v := range f.Values {
		mark := " "
		if v.Selected {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %-30s %5d\n", mark, v.Term, v.Count)
	}
}
