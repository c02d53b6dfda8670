package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/facetsearch/internal/app"
	"github.com/hyperjump/facetsearch/internal/app/apptest"
	"github.com/hyperjump/facetsearch/internal/config"
	"github.com/hyperjump/facetsearch/internal/models"
)

type fakeWatch struct{ dirs []string }

func (f *fakeWatch) Directories() []string { return f.dirs }

func newTestServer(t *testing.T, opts ...Option) (*app.Components, http.Handler) {
	t.Helper()
	c := apptest.New(t)
	return c, NewServer(c, nil, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) *models.SearchResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &resp
}

func findFacet(resp *models.SearchResponse, name string) *models.FacetResponse {
	for _, f := range resp.Facets {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func TestHandleSearch(t *testing.T) {
	_, h := newTestServer(t)
	resp := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", `{"query": "drama", "limit": 3}`))

	if resp.TotalFound != 7 {
		t.Errorf("TotalFound = %d, want 7", resp.TotalFound)
	}
	if len(resp.Hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(resp.Hits))
	}
	if resp.Hits[0].Rank != 1 || resp.Hits[0].Values["title"] == "" {
		t.Errorf("first hit = %+v", resp.Hits[0])
	}
	if !strings.HasPrefix(resp.URL, "/search/") {
		t.Errorf("URL = %q", resp.URL)
	}
	if len(resp.Facets) != 4 {
		t.Fatalf("facets = %d, want 4", len(resp.Facets))
	}

	actor := findFacet(resp, "actor")
	if actor == nil || len(actor.Values) == 0 {
		t.Fatal("actor facet missing")
	}
	top := actor.Values[0]
	if top.Term != "Alfred Hitchcock" || top.Count != 4 || top.Selected {
		t.Errorf("top actor = %+v", top)
	}
	if !strings.Contains(top.Toggle, "(@actor Alfred Hitchcock)") {
		t.Errorf("Toggle = %q", top.Toggle)
	}
	if !strings.Contains(top.URL, "actor=Alfred+Hitchcock") {
		t.Errorf("URL = %q", top.URL)
	}
}

func TestHandleSearch_FacetRestriction(t *testing.T) {
	_, h := newTestServer(t)
	resp := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search",
		`{"query": "drama", "facets": ["genre"], "cache": false}`))
	if len(resp.Facets) != 1 || resp.Facets[0].Name != "genre" {
		t.Errorf("facets = %+v, want only genre", resp.Facets)
	}
	if resp.Time <= 0 {
		t.Error("an uncached search should report engine time")
	}

	// The restriction applies to that request only.
	resp = decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", `{"query": "drama"}`))
	if len(resp.Facets) != 4 {
		t.Errorf("facets = %d, want 4", len(resp.Facets))
	}
}

func TestHandleSearch_Cached(t *testing.T) {
	_, h := newTestServer(t)
	body := `{"query": "thriller"}`
	first := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", body))
	second := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", body))
	if first.Time <= 0 {
		t.Error("first search should be computed")
	}
	if second.Time != 0 || second.FacetTime != 0 {
		t.Errorf("second search times = %v, %v, want cached", second.Time, second.FacetTime)
	}
	if second.TotalFound != first.TotalFound {
		t.Errorf("cached TotalFound = %d, want %d", second.TotalFound, first.TotalFound)
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid body", `{"query":`, http.StatusBadRequest},
		{"negative offset", `{"query": "drama", "offset": -1}`, http.StatusBadRequest},
		{"unknown facet", `{"query": "drama", "facets": ["studio"]}`, http.StatusBadRequest},
		{"unknown field", `{"query": "(@nope x)"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/search", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s, want an error", rec.Body.String())
			}
		})
	}
}

func TestHandlePrettySearch(t *testing.T) {
	_, h := newTestServer(t)
	resp := decodeSearch(t, do(t, h, http.MethodGet, "/search/actor=james+stewart/?limit=2", ""))
	if resp.TotalFound != 3 {
		t.Errorf("TotalFound = %d, want 3", resp.TotalFound)
	}
	if len(resp.Hits) != 2 {
		t.Errorf("hits = %d, want 2", len(resp.Hits))
	}
	if resp.Query != "(@actor james stewart)" {
		t.Errorf("Query = %q", resp.Query)
	}
	actor := findFacet(resp, "actor")
	if actor == nil {
		t.Fatal("actor facet missing")
	}
	for _, v := range actor.Values {
		if v.Term == "James Stewart" && !v.Selected {
			t.Error("James Stewart should be selected")
		}
	}
}

func TestHandleDocuments(t *testing.T) {
	_, h := newTestServer(t)
	psycho := `{"id": 10, "title": "Psycho", "genre": ["Horror", "Thriller"], "actor": ["Anthony Perkins", "Alfred Hitchcock"], "director": ["Alfred Hitchcock"], "year": 1960, "votes": 500, "plot": "A secretary stops at a motel."}`

	// Warm the cache so the flush after indexing is observable.
	before := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", `{"query": "@director hitchcock"}`))
	if before.TotalFound != 4 {
		t.Fatalf("TotalFound = %d, want 4", before.TotalFound)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/documents", psycho)
	if rec.Code != http.StatusCreated {
		t.Fatalf("index status = %d, body %s", rec.Code, rec.Body.String())
	}
	after := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", `{"query": "@director hitchcock"}`))
	if after.TotalFound != 5 {
		t.Errorf("TotalFound after indexing = %d, want 5", after.TotalFound)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/documents/10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var row map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatal(err)
	}
	if row["title"] != "Psycho" {
		t.Errorf("row = %v", row)
	}

	if rec := do(t, h, http.MethodDelete, "/api/v1/documents/10", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/documents/10", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	final := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", `{"query": "@director hitchcock"}`))
	if final.TotalFound != 4 {
		t.Errorf("TotalFound after delete = %d, want 4", final.TotalFound)
	}
}

func TestHandleDocuments_Batch(t *testing.T) {
	c, h := newTestServer(t)
	body := `[{"id": "a", "title": "One", "genre": ["Drama"]}, {"id": "b", "title": "Two", "genre": ["Drama"]}]`
	rec := do(t, h, http.MethodPost, "/api/v1/documents", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if n, _ := c.Engine.DocCount(); n != 11 {
		t.Errorf("DocCount = %d, want 11", n)
	}

	for _, bad := range []string{"", "[1, 2]", `"text"`} {
		if rec := do(t, h, http.MethodPost, "/api/v1/documents", bad); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestHandleFlushCache(t *testing.T) {
	c, h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/v1/search", `{"query": "drama"}`)
	keys, _ := c.Store.Keys(t.Context())
	if len(keys) == 0 {
		t.Fatal("search should populate the cache")
	}

	rec := do(t, h, http.MethodDelete, "/api/v1/cache?sticky=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if keys, _ := c.Store.Keys(t.Context()); len(keys) != 0 {
		t.Errorf("keys after flush = %d", len(keys))
	}
}

func TestHandleFlushCache_Disabled(t *testing.T) {
	c := apptest.New(t, func(cfg *config.Config) { cfg.Cache.Driver = config.CacheNone })
	h := NewServer(c, nil).Handler()
	if rec := do(t, h, http.MethodDelete, "/api/v1/cache", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Documents int64    `json:"documents"`
		Indexed   uint64   `json:"indexed"`
		Facets    []string `json:"facets"`
		Cache     struct {
			Driver  string `json:"driver"`
			Enabled bool   `json:"enabled"`
		} `json:"cache"`
		DiskUsage int64 `json:"disk_usage_bytes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Documents != 9 || resp.Indexed != 9 {
		t.Errorf("documents = %d, indexed = %d, want 9", resp.Documents, resp.Indexed)
	}
	if len(resp.Facets) != 4 {
		t.Errorf("facets = %v", resp.Facets)
	}
	if !resp.Cache.Enabled || resp.Cache.Driver != config.CacheMemory {
		t.Errorf("cache = %+v", resp.Cache)
	}
	if resp.DiskUsage <= 0 {
		t.Errorf("disk usage = %d", resp.DiskUsage)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/api/v1/watch/directories", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("status without watch = %d, want 501", rec.Code)
	}

	_, h = newTestServer(t, WithWatch(&fakeWatch{dirs: []string{"/data/movies"}}))
	rec := do(t, h, http.MethodGet, "/api/v1/watch/directories", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/data/movies") {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	do(t, h, http.MethodPost, "/api/v1/search", `{"query": "drama"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("facetsearch_http_requests_total")) {
		t.Error("metrics should include the http request counter")
	}
}
