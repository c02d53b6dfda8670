package models

// SearchResponse is the response of a search API call.
type SearchResponse struct {
	// Query is the user form of the parsed query.
	Query string `json:"query"`
	// Canonical identifies the query regardless of term order.
	Canonical  string `json:"canonical"`
	URL        string `json:"url"`
	Total      int    `json:"total"`
	TotalFound int    `json:"total_found"`
	// Time is the engine time in seconds, 0 when served from cache.
	Time      float64          `json:"time"`
	Warning   string           `json:"warning,omitempty"`
	Hits      []*SearchHit     `json:"hits"`
	Facets    []*FacetResponse `json:"facets,omitempty"`
	FacetTime float64          `json:"facet_time"`
	QueryTime int64            `json:"query_time_ms"`
}

// SearchHit is one matching document with its display row.
type SearchHit struct {
	ID     string              `json:"id"`
	Weight float64             `json:"weight"`
	Rank   int                 `json:"rank"`
	Values map[string]string   `json:"values"`
	Lists  map[string][]string `json:"lists,omitempty"`
}

// FacetResponse is one computed facet.
type FacetResponse struct {
	Name       string        `json:"name"`
	Field      string        `json:"field"`
	Time       float64       `json:"time"`
	TotalFound int           `json:"total_found"`
	Warning    string        `json:"warning,omitempty"`
	Values     []*FacetValue `json:"values"`
}

// FacetValue is one facet value with the query that toggles it.
type FacetValue struct {
	Term      string  `json:"term"`
	Count     int     `json:"count"`
	GroupFunc float64 `json:"groupfunc"`
	Selected  bool    `json:"selected"`
	// Toggle is the user form of the query with this value toggled.
	Toggle string `json:"toggle"`
	// URL is the pretty url of Toggle.
	URL string `json:"url"`
}
