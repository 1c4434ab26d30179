package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	CatalogLayoutDefault = "default"
	CatalogLayoutThredds = "thredds"
)

// Config is the root runtime configuration of cdrfetch.
type Config struct {
	Dataset       string            `json:"dataset" yaml:"dataset"`
	StartDate     string            `json:"start_date" yaml:"start_date"`
	EndDate       string            `json:"end_date" yaml:"end_date"`
	Output        string            `json:"output" yaml:"output"`
	URLsOnly      bool              `json:"urls_only" yaml:"urls_only"`
	CatalogLayout string            `json:"catalog_layout" yaml:"catalog_layout"`
	Filter        string            `json:"filter" yaml:"filter"`
	ExtraDatasets map[string]string `json:"extra_datasets" yaml:"extra_datasets"`
	Matcher       []MatcherConfig   `json:"matcher" yaml:"matcher"`
	Fetch         FetchConfig       `json:"fetch" yaml:"fetch"`
	Cache         CacheConfig       `json:"cache" yaml:"cache"`
	Log           logger.LogConfig  `json:"log" yaml:"log"`
}

type MatcherConfig struct {
	Name string      `json:"name" yaml:"name"`
	Type string      `json:"type" yaml:"type"`
	Data interface{} `json:"data" yaml:"data"`
}

type FetchConfig struct {
	Timeout          int64      `json:"timeout" yaml:"timeout"` // ms
	UserAgent        string     `json:"user_agent" yaml:"user_agent"`
	MaxBodySize      int64      `json:"max_body_size" yaml:"max_body_size"`
	Parallel         int        `json:"parallel" yaml:"parallel"`
	Resolver         []string   `json:"resolver" yaml:"resolver"`
	ResolverParallel int        `json:"resolver_parallel" yaml:"resolver_parallel"`
	ResolverCache    int        `json:"resolver_cache" yaml:"resolver_cache"`
	Hosts            HostConfig `json:"hosts" yaml:"hosts"`
}

// HostConfig pins hosts to fixed addresses ahead of any resolver.
type HostConfig struct {
	Records map[string]string `json:"records" yaml:"records"`
	Files   []string          `json:"files" yaml:"files"`
}

type CacheConfig struct {
	Size    int    `json:"size" yaml:"size"`
	TTL     int64  `json:"ttl" yaml:"ttl"` // seconds
	Persist bool   `json:"persist" yaml:"persist"`
	Dir     string `json:"dir" yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CatalogLayout: CatalogLayoutThredds,
		Fetch: FetchConfig{
			Timeout:          30000,
			UserAgent:        "cdrfetch",
			MaxBodySize:      32 * 1024 * 1024,
			Parallel:         1,
			ResolverParallel: 1,
			ResolverCache:    128,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  600,
		},
		Log: logger.LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads the configuration file from disk on top of Default. An empty
// path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.CatalogLayout {
	case "", CatalogLayoutDefault, CatalogLayoutThredds:
	default:
		return fmt.Errorf("invalid catalog_layout:%s", c.CatalogLayout)
	}
	if c.Cache.Persist && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when cache.persist is enabled")
	}
	if c.Fetch.Parallel < 0 || c.Fetch.ResolverParallel < 0 {
		return fmt.Errorf("parallel settings must not be negative")
	}
	return nil
}
