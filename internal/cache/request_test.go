package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/facetsearch/internal/searchd"
)

type countingEngine struct {
	batches [][]searchd.Request
	err     error
}

func (e *countingEngine) Execute(_ context.Context, reqs []searchd.Request) ([]*searchd.Result, error) {
	e.batches = append(e.batches, reqs)
	if e.err != nil {
		return nil, e.err
	}
	out := make([]*searchd.Result, len(reqs))
	for i, r := range reqs {
		out[i] = &searchd.Result{
			Time:       0.25,
			TotalFound: 1,
			Matches:    []searchd.Match{{ID: r.Query}},
		}
	}
	return out, nil
}

func request(q string) searchd.Request {
	return searchd.Request{Index: "*", Query: q, Options: searchd.DefaultOptions()}
}

func TestFingerprint(t *testing.T) {
	a := request("(@genre drama)")
	b := request("(@genre drama)")
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("identical requests must share a fingerprint")
	}
	b.Options.Select = "@groupby, @count"
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("requests differing in select must not collide")
	}
	c := request("(@genre drama)")
	c.Options.Limit = 16
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("requests differing in limit must not collide")
	}
}

func TestRequestCache_HitsAndMisses(t *testing.T) {
	ctx := context.Background()
	eng := &countingEngine{}
	rc := NewRequestCache(NewMemoryStore(10, time.Minute), eng)

	first, err := rc.Execute(ctx, []searchd.Request{request("a"), request("b")})
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Time == 0 {
		t.Error("a computed result keeps its time")
	}

	got, err := rc.Execute(ctx, []searchd.Request{request("c"), request("a"), request("b")})
	if err != nil {
		t.Fatal(err)
	}
	if len(eng.batches) != 2 || len(eng.batches[1]) != 1 || eng.batches[1][0].Query != "c" {
		t.Fatalf("engine batches = %+v, want only the miss in the second batch", eng.batches)
	}
	for i, want := range []string{"c", "a", "b"} {
		if got[i].Matches[0].ID != want {
			t.Errorf("result %d = %s, want %s", i, got[i].Matches[0].ID, want)
		}
	}
	if got[1].Time != 0 || got[2].Time != 0 {
		t.Error("cache hits must report a time of 0")
	}
	if got[0].Time == 0 {
		t.Error("the fresh result must keep its time")
	}
}

func TestRequestCache_AllHitsSkipEngine(t *testing.T) {
	ctx := context.Background()
	eng := &countingEngine{}
	rc := NewRequestCache(NewMemoryStore(10, time.Minute), eng)
	_, _ = rc.Execute(ctx, []searchd.Request{request("a")})
	if _, err := rc.Execute(ctx, []searchd.Request{request("a")}); err != nil {
		t.Fatal(err)
	}
	if len(eng.batches) != 1 {
		t.Errorf("engine called %d times, want 1", len(eng.batches))
	}
}

func TestRequestCache_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute)
	boom := errors.New("searchd down")
	eng := &countingEngine{err: boom}
	rc := NewRequestCache(store, eng)

	if _, err := rc.Execute(ctx, []searchd.Request{request("a")}); !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if store.Len() != 0 {
		t.Error("a failed batch must not be cached")
	}
}

func TestRequestCache_EngineErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute)
	rc := NewRequestCache(store, engineFunc(func(reqs []searchd.Request) []*searchd.Result {
		return []*searchd.Result{{Error: "unknown index"}}
	}))
	res, err := rc.Execute(ctx, []searchd.Request{request("a")})
	if err != nil || res[0].Error == "" {
		t.Fatalf("Execute() = %+v, %v", res, err)
	}
	if store.Len() != 0 {
		t.Error("a result with an engine error must not be cached")
	}
}

type engineFunc func([]searchd.Request) []*searchd.Result

func (f engineFunc) Execute(_ context.Context, reqs []searchd.Request) ([]*searchd.Result, error) {
	return f(reqs), nil
}

func TestRequestCache_Policies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute)
	eng := &countingEngine{}
	rc := NewRequestCache(store, eng)

	if _, err := rc.WithPolicy(ReadOnly).Execute(ctx, []searchd.Request{request("a")}); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Fatal("read-only policy must not write")
	}

	if _, err := rc.WithPolicy(Preload).Execute(ctx, []searchd.Request{request("a")}); err != nil {
		t.Fatal(err)
	}
	if err := rc.Clear(ctx, false); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Exists(ctx, Fingerprint(request("a"))); !ok {
		t.Error("preloaded entries must survive Clear(false)")
	}

	if _, err := rc.Execute(ctx, []searchd.Request{request("a")}); err != nil {
		t.Fatal(err)
	}
	if len(eng.batches) != 2 {
		t.Errorf("engine batches = %d, want 2 (read-only miss and preload)", len(eng.batches))
	}
}
