package search

import (
	"github.com/hyperjump/facetsearch/internal/models"
	"github.com/hyperjump/facetsearch/internal/query"
)

// NewResponse converts res into the API response. Every facet value carries
// the query with that value toggled, as user text and as a pretty url under root.
func NewResponse(res *Result, root string) *models.SearchResponse {
	q := res.Query
	resp := &models.SearchResponse{
		Query:     q.User(),
		Canonical: q.Canonical(),
		URL:       q.ToPrettyURL(query.URLOptions{Root: root, KeepOrder: true}),
		Hits:      []*models.SearchHit{},
	}
	if h := res.Hits; h != nil {
		resp.Total = h.Total
		resp.TotalFound = h.TotalFound
		resp.Time = h.Time
		resp.Warning = h.Warning
		for i, m := range h.Matches {
			resp.Hits = append(resp.Hits, &models.SearchHit{
				ID:     m.ID,
				Weight: m.Weight,
				Rank:   i + 1,
				Values: m.Values,
				Lists:  m.Lists,
			})
		}
	}
	if res.Facets == nil {
		return resp
	}
	resp.FacetTime = res.Facets.Time()
	for _, f := range res.Facets.Enabled() {
		r := f.Results()
		fr := &models.FacetResponse{
			Name:       f.Name(),
			Field:      f.SphField(),
			Time:       r.Time,
			TotalFound: r.TotalFound,
			Warning:    r.Warning,
			Values:     make([]*models.FacetValue, 0, len(r.Values)),
		}
		for _, v := range r.Values {
			toggled := Toggle(q, f.SphField(), v.Term)
			fr.Values = append(fr.Values, &models.FacetValue{
				Term:      v.Term,
				Count:     v.Count,
				GroupFunc: v.GroupFunc,
				Selected:  v.Selected,
				Toggle:    toggled.User(),
				URL:       toggled.ToPrettyURL(query.URLOptions{Root: root, KeepOrder: true}),
			})
		}
		resp.Facets = append(resp.Facets, fr)
	}
	return resp
}
