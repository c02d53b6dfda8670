// Package config provides configuration loading and structs for the facetsearch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/keyword"
	"github.com/hyperjump/facetsearch/internal/searchd"
)

// Cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool            `yaml:"debug"`
	Logging LoggingConfig   `yaml:"logging"`
	Server  ServerConfig    `yaml:"server"`
	Storage StorageConfig   `yaml:"storage"`
	Engine  EngineConfig    `yaml:"engine"`
	Query   QueryConfig     `yaml:"query"`
	Hits    HitsConfig      `yaml:"hits"`
	Facets  []facets.Config `yaml:"facets"`
	Cache   CacheConfig     `yaml:"cache"`
	Watch   WatchConfig     `yaml:"watch"`
}

// LoggingConfig overrides the log level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Root is the path prefix of pretty search urls.
	Root string `yaml:"root"`
}

// StorageConfig holds paths for the database, the index and the data files.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// DataDir holds the JSONL data files loaded by index and watch.
	DataDir string `yaml:"data_dir"`
}

// EngineConfig describes what the full-text engine indexes and its default
// query options.
type EngineConfig struct {
	Index             string                        `yaml:"index"`
	Fields            []string                      `yaml:"fields"`
	Attributes        []string                      `yaml:"attributes"`
	NumericAttributes []string                      `yaml:"numeric_attributes"`
	FieldWeights      map[string]float64            `yaml:"field_weights"`
	SortMode          string                        `yaml:"sort_mode"`
	SortClause        string                        `yaml:"sort_clause"`
	SortModeOptions   map[string]searchd.SortPreset `yaml:"sort_mode_options"`
	MaxMatches        int                           `yaml:"max_matches"`
	Limit             int                           `yaml:"limit"`
}

// QueryConfig holds query parsing settings.
type QueryConfig struct {
	// FieldMap maps user field names to engine field names.
	FieldMap   map[string]string `yaml:"field_map"`
	AllowEmpty bool              `yaml:"allow_empty"`
}

// HitsConfig says how display rows of search hits are fetched.
type HitsConfig struct {
	// SQL fetches the rows, with "$id" replaced by the hit ids.
	SQL         string   `yaml:"sql"`
	SplitFields []string `yaml:"split_fields"`
	SplitSep    string   `yaml:"split_sep"`
	Highlight   []string `yaml:"highlight"`
}

// CacheConfig holds the request cache settings.
type CacheConfig struct {
	Driver        string   `yaml:"driver"`
	Addrs         []string `yaml:"addrs"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	DB            int      `yaml:"db"`
	KeyPrefix     string   `yaml:"key_prefix"`
	DefaultTTLSec int      `yaml:"default_ttl_sec"`
	// Capacity bounds the memory driver.
	Capacity   int   `yaml:"capacity"`
	Caching    *bool `yaml:"caching"`
	Preloading bool  `yaml:"preloading"`
}

// Enabled reports whether a cache store is configured.
func (c *CacheConfig) Enabled() bool { return c.Driver != CacheNone }

// CachingOrDefault returns whether facet results are cached; defaults to true
// when a store is configured.
func (c *CacheConfig) CachingOrDefault() bool {
	if c.Caching != nil {
		return *c.Caching
	}
	return c.Enabled()
}

// TTL returns the default expiry of cache entries.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.DefaultTTLSec) * time.Second
}

// WatchConfig holds data directory watch settings.
type WatchConfig struct {
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Schema returns the engine schema. Facet attributes not declared under
// engine are added as keyword attributes.
func (c *Config) Schema() keyword.Schema {
	s := keyword.Schema{
		Fields:            append([]string(nil), c.Engine.Fields...),
		Attributes:        append([]string(nil), c.Engine.Attributes...),
		NumericAttributes: append([]string(nil), c.Engine.NumericAttributes...),
	}
	for _, fc := range c.Facets {
		attr := facets.FromConfig(fc).Attr()
		if !contains(s.Attributes, attr) && !contains(s.NumericAttributes, attr) {
			s.Attributes = append(s.Attributes, attr)
		}
	}
	return s
}

// Load reads and parses the config file at path, applies defaults, expands
// paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that defaults cannot fix.
func (c *Config) Validate() error {
	if len(c.Engine.Fields) == 0 {
		return fmt.Errorf("invalid config: engine.fields is empty")
	}
	seen := make(map[string]bool, len(c.Facets))
	for i, fc := range c.Facets {
		if fc.Name == "" {
			return fmt.Errorf("invalid config: facets[%d] has no name", i)
		}
		if seen[fc.Name] {
			return fmt.Errorf("invalid config: duplicate facet %q", fc.Name)
		}
		seen[fc.Name] = true
	}
	switch c.Cache.Driver {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("invalid config: cache.addrs is required for redis")
		}
	default:
		return fmt.Errorf("invalid config: unknown cache driver %q", c.Cache.Driver)
	}
	switch searchd.SortMode(c.Engine.SortMode) {
	case searchd.SortRelevance, searchd.SortAttrAsc, searchd.SortAttrDesc, searchd.SortExtended:
	default:
		if _, ok := c.Engine.SortModeOptions[c.Engine.SortMode]; !ok {
			return fmt.Errorf("invalid config: unknown sort mode %q", c.Engine.SortMode)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
