// Package config loads the four construction-time tunables the page
// cache core needs: pool size, page size, the K in LRU-K, and the
// extendible hash table's bucket size.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pagecache/page"
)

// Config holds the pool's fixed construction parameters.
type Config struct {
	PoolSize   int `yaml:"pool_size"`
	PageSize   int `yaml:"page_size"`
	ReplacerK  int `yaml:"replacer_k"`
	BucketSize int `yaml:"bucket_size"`
}

// Default returns the conventional configuration: a 4096-byte page,
// LRU-2 replacement, and 4 entries per hash bucket.
func Default(poolSize int) Config {
	return Config{
		PoolSize:   poolSize,
		PageSize:   page.Size,
		ReplacerK:  2,
		BucketSize: 4,
	}
}

// Load reads a YAML config file, filling in defaults for any field
// left at its zero value.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}

	cfg := Default(0)
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = page.Size
	}
	if cfg.ReplacerK == 0 {
		cfg.ReplacerK = 2
	}
	if cfg.BucketSize == 0 {
		cfg.BucketSize = 4
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.PoolSize <= 0 {
		return errors.New("config: pool_size must be positive")
	}
	if c.PageSize != page.Size {
		return errors.Errorf("config: page_size must be %d, got %d", page.Size, c.PageSize)
	}
	if c.ReplacerK <= 0 {
		return errors.New("config: replacer_k must be positive")
	}
	if c.BucketSize <= 0 {
		return errors.New("config: bucket_size must be positive")
	}
	return nil
}
