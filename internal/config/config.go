package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
// Bare numbers are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Config holds the global configuration for an elevation build.
type Config struct {
	// TileDir is the root of the graph tile store.
	TileDir string `yaml:"tile_dir"`

	// ElevationDir holds the .hgt elevation rasters. Elevation augmentation
	// is optional: when the directory is absent, a build is a no-op.
	ElevationDir string `yaml:"elevation_dir"`

	// Workers is the number of parallel tile workers. Zero means one per CPU.
	Workers int `yaml:"workers"`

	// TileCacheMB caps the tile store's in-memory cache before it is trimmed.
	TileCacheMB int `yaml:"tile_cache_mb"`

	// Logging and metrics
	Verbose         bool     `yaml:"-"`
	LogFile         string   `yaml:"log_file"`
	MetricsInterval Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:         runtime.NumCPU(),
		TileCacheMB:     1024,
		MetricsInterval: Duration(30 * time.Second),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.TileDir == "" {
		return fmt.Errorf("tile directory is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.TileCacheMB < 0 {
		return fmt.Errorf("tile cache budget must not be negative")
	}
	return nil
}
