package benchmark

import (
	"context"
	"testing"

	"github.com/hyperjump/facetsearch/internal/app/apptest"
	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/query"
)

func BenchmarkParse(b *testing.B) {
	fieldMap := map[string]string{"actor": "actor", "genre": "genre", "director": "director"}
	for i := 0; i < b.N; i++ {
		_ = query.Parse("(@actor harrison ford) (@-genre sci-fi) (@director george lucas) star wars", fieldMap)
	}
}

func BenchmarkPrettyURL(b *testing.B) {
	q := query.Parse("(@actor harrison ford) (@-genre sci-fi) star wars", nil)
	opts := query.URLOptions{Root: "/search/", KeepOrder: true}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		u := q.ToPrettyURL(opts)
		_ = query.FromPrettyURL(u, opts.Root, "")
	}
}

func BenchmarkQuery(b *testing.B) {
	c := apptest.New(b)
	ctx := context.Background()
	for _, bc := range []struct {
		name string
		mode facets.CacheMode
	}{
		{"uncached", facets.CacheOff},
		{"cached", facets.CacheOn},
	} {
		b.Run(bc.name, func(b *testing.B) {
			cl := c.Client.Clone()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := cl.Query(ctx, "drama", bc.mode); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
