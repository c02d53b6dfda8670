package config

import (
	"github.com/hyperjump/facetsearch/internal/hits"
	"github.com/hyperjump/facetsearch/internal/searchd"
)

// DefaultHitsSQL fetches the whole display row of every hit.
const DefaultHitsSQL = "select * from documents where id in ($id)"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Root == "" {
		cfg.Server.Root = "/search/"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/facetsearch/data/db/facetsearch.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/facetsearch/data/indices/bleve"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/facetsearch/data/jsonl"
	}
	if cfg.Engine.Index == "" {
		cfg.Engine.Index = "*"
	}
	if cfg.Engine.SortMode == "" {
		cfg.Engine.SortMode = string(searchd.SortRelevance)
	}
	if cfg.Engine.MaxMatches == 0 {
		cfg.Engine.MaxMatches = searchd.DefaultOptions().MaxMatches
	}
	if cfg.Engine.Limit == 0 {
		cfg.Engine.Limit = 10
	}
	if cfg.Hits.SQL == "" {
		cfg.Hits.SQL = DefaultHitsSQL
	}
	if cfg.Hits.SplitSep == "" {
		cfg.Hits.SplitSep = hits.DefaultSep
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = CacheMemory
	}
	if cfg.Cache.DefaultTTLSec == 0 {
		cfg.Cache.DefaultTTLSec = 86400
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 10000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jsonl", ".ndjson"}
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
	// Recursive defaults to true when unset (nil).
	if cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
