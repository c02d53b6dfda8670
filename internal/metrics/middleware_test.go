package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/search/*", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	tests := []struct {
		path, pattern, status string
	}{
		{"/search/genre=drama/", "/search/*", "200"},
		{"/search/year=1999/", "/search/*", "200"},
		{"/missing", "/missing", "404"},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
		if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tt.pattern, tt.status)); got < 1 {
			t.Errorf("%s: http_requests_total{path=%q,status=%s} = %v, want >= 1", tt.path, tt.pattern, tt.status, got)
		}
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/search/*", "200")); got < 2 {
		t.Errorf("pretty urls should share one label, got %v", got)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestCollectorsRegistered(t *testing.T) {
	CacheRequestsTotal.WithLabelValues("hit").Inc()
	if got := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("hit")); got < 1 {
		t.Errorf("cache_requests_total{hit} = %v", got)
	}
	FacetComputeTotal.WithLabelValues("direct", "ok").Inc()
	if testutil.CollectAndCount(FacetComputeTotal) == 0 {
		t.Error("expected facet compute samples")
	}
}
