// Package config loads, validates and persists mwapipe configuration.
//
// Configuration is an explicit structure with a fixed set of named options.
// Values are layered: built-in defaults, the global file
// ($MWAPIPE_HOME/config.yaml), an optional overlay file passed with --config,
// environment variables, and finally CLI flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognised by Load.
const (
	EnvHome         = "MWAPIPE_HOME"
	EnvLogLevel     = "MWAPIPE_LOG_LEVEL"
	EnvLogFormat    = "MWAPIPE_LOG_FORMAT"
	EnvBudget       = "MWAPIPE_BUDGET"
	EnvCacheEnabled = "MWAPIPE_CACHE_ENABLED"
	EnvCacheDir     = "MWAPIPE_CACHE_DIR"
)

// Report formats.
const (
	ReportFormatJSON   = "json"
	ReportFormatYAML   = "yaml"
	ReportFormatNDJSON = "ndjson"
)

// Default values.
const (
	DefaultMemoryBudget    = 2 << 30 // 2 GiB
	DefaultSampleInterval  = time.Second
	DefaultTolerance       = 1.1
	DefaultAutoBudgetRatio = 0.8
	DefaultThreshold       = 5.0
	DefaultEdgeChannels    = 2
	DefaultSpectrumType    = "cross"
	DefaultCacheTTLSeconds = 3600
	DefaultReportPath      = "mwapipe-report.json"

	configFileName = "config.yaml"
	homeDirName    = ".mwapipe"
)

// Cache TTL bounds, in seconds.
const (
	MinCacheTTLSeconds = 60
	MaxCacheTTLSeconds = 604800
)

// Config is the complete mwapipe configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"  json:"logging"`
	Report   ReportConfig   `yaml:"report"   json:"report"`
	Cache    CacheConfig    `yaml:"cache"    json:"cache"`

	configPath string
}

// ReportConfig controls where and how the run report is written.
type ReportConfig struct {
	// Path of the report file. Compression is chosen from the extension
	// (.gz, .zst, .lz4).
	Path string `yaml:"path"                   json:"path"`
	// Format is json, yaml or ndjson. Empty means infer from Path.
	Format string `yaml:"format,omitempty"       json:"format,omitempty"`
	// MetricsFile, when set, receives a Prometheus textfile of run metrics.
	MetricsFile string `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
}

// CacheConfig controls the descriptor cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"     json:"enabled"`
	Directory  string `yaml:"directory"   json:"directory"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// Validation errors.
var (
	ErrInvalidReportFormat = errors.New("report format must be json, yaml or ndjson")
	ErrInvalidCacheTTL     = fmt.Errorf(
		"cache ttl_seconds must be between %d and %d", MinCacheTTLSeconds, MaxCacheTTLSeconds)
	ErrCacheDirRequired = errors.New("cache directory is required when the cache is enabled")
	ErrConfigNotFound   = errors.New("config file not found")
)

// New returns a Config populated with defaults. Of the environment it
// only consults MWAPIPE_HOME, to place the cache and config file.
func New() *Config {
	home := HomeDir()
	return &Config{
		Pipeline: defaultPipelineConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Report: ReportConfig{
			Path: DefaultReportPath,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Directory:  filepath.Join(home, "cache"),
			TTLSeconds: DefaultCacheTTLSeconds,
		},
		configPath: filepath.Join(home, configFileName),
	}
}

// Load builds a Config from defaults, the global config file (if present),
// the overlay file at overlayPath (if non-empty; it must exist), and the
// environment. The result is validated before it is returned.
func Load(overlayPath string) (*Config, error) {
	cfg := New()

	if _, err := os.Stat(cfg.configPath); err == nil {
		if mergeErr := ShallowMergeYAML(cfg, cfg.configPath); mergeErr != nil {
			return nil, fmt.Errorf("loading global config: %w", mergeErr)
		}
	}

	if overlayPath != "" {
		if _, err := os.Stat(overlayPath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, overlayPath)
			}
			return nil, fmt.Errorf("accessing config %s: %w", overlayPath, err)
		}
		if err := ShallowMergeYAML(cfg, overlayPath); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", overlayPath, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides configuration values from MWAPIPE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvBudget); v != "" {
		b, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBudget, err)
		}
		c.Pipeline.MemoryBudget = b
	}
	if v := os.Getenv(EnvCacheEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheEnabled, err)
		}
		c.Cache.Enabled = enabled
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.Cache.Directory = v
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Report.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks the report section.
func (r ReportConfig) Validate() error {
	switch r.Format {
	case "", ReportFormatJSON, ReportFormatYAML, ReportFormatNDJSON:
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidReportFormat, r.Format)
	}
}

// Validate checks the cache section. A disabled cache is always valid.
func (cc CacheConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}
	if cc.Directory == "" {
		return ErrCacheDirRequired
	}
	if cc.TTLSeconds < MinCacheTTLSeconds || cc.TTLSeconds > MaxCacheTTLSeconds {
		return fmt.Errorf("%w: got %d", ErrInvalidCacheTTL, cc.TTLSeconds)
	}
	return nil
}

// ConfigPath returns the path Save writes to.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath changes the path Save writes to.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err = os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", c.configPath, err)
	}
	return nil
}

// HomeDir returns the mwapipe home directory: $MWAPIPE_HOME, or ~/.mwapipe.
func HomeDir() string {
	if v := os.Getenv(EnvHome); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return homeDirName
	}
	return filepath.Join(home, homeDirName)
}
