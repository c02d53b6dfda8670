package models

import "fmt"

// Default and maximum page sizes of a search request.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// SearchRequest is the body of a search API call.
type SearchRequest struct {
	// Query is the user form of the query, e.g. "drama (@actor james stewart)".
	// Empty lists every document.
	Query      string `json:"query"`
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	SortMode   string `json:"sort_mode,omitempty"`
	SortClause string `json:"sort_clause,omitempty"`
	// Facets restricts the computed facets to these names. Empty computes all.
	Facets []string `json:"facets,omitempty"`
	// Cache set to false bypasses the result cache.
	Cache *bool `json:"cache,omitempty"`
}

// Validate checks the request and applies defaults.
func (r *SearchRequest) Validate() error {
	if r.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return nil
}
