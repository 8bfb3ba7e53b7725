// Package config loads, validates and persists phonelookup configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rshade/phonelookup/internal/statefile"
)

// Default values mirror the settings the tool has always shipped with.
const (
	DefaultAPIHost         = "eyecon.p.rapidapi.com"
	DefaultAPIPath         = "/api/v1/search"
	DefaultAPITimeout      = 30 * time.Second
	DefaultRequestDelay    = 1500 * time.Millisecond
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 2 * time.Second
	DefaultMaxRetryDelay   = 30 * time.Second
	DefaultBackoff         = 2.0
	DefaultRequestsPerMin  = 60
	DefaultCountryCode     = "92"
	DefaultMaxNames        = 10
	DefaultMaxImageURLs    = 10
	DefaultSaveInterval    = 10
	DefaultMonthlyLimit    = 1000
	DefaultNumberColumn    = "Number"
	DefaultImagesPerRecord = 3
	DefaultImageWidth      = 100
	DefaultImageHeight     = 100
	DefaultImageQuality    = 85
	DefaultRowHeight       = 75
	DefaultColumnWidth     = 15
	DefaultCacheTTL        = 7 * 24 * time.Hour
	DefaultWarnThreshold   = 800
	DefaultCritThreshold   = 950

	configFileName = "config.yaml"
)

// ErrAPIKeyMissing is returned when a command needs the API key and none is configured.
var ErrAPIKeyMissing = errors.New("api key is not configured (set api.key or PHONELOOKUP_API_KEY)")

// APIConfig holds the lookup provider credentials and endpoint.
type APIConfig struct {
	Key      string        `yaml:"key"                json:"-"`
	Host     string        `yaml:"host"               json:"host"     validate:"required,hostname_rfc1123"`
	Endpoint string        `yaml:"endpoint,omitempty" json:"endpoint" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout"            json:"timeout"  validate:"gt=0"`
}

// URL returns the configured endpoint or the default search URL for Host.
func (a APIConfig) URL() string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return "https://" + a.Host + DefaultAPIPath
}

// LookupConfig controls retries, pacing and result bounds.
type LookupConfig struct {
	RequestDelay         time.Duration `yaml:"request_delay"           json:"request_delay"           validate:"gte=0"`
	MaxRetries           int           `yaml:"max_retries"             json:"max_retries"             validate:"min=1,max=10"`
	RetryDelay           time.Duration `yaml:"retry_delay"             json:"retry_delay"             validate:"gte=0"`
	MaxRetryDelay        time.Duration `yaml:"max_retry_delay"         json:"max_retry_delay"         validate:"gte=0"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"      json:"backoff_multiplier"      validate:"gte=1"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute" json:"max_requests_per_minute" validate:"gte=0"`
	CountryCode          string        `yaml:"country_code"            json:"country_code"            validate:"required,numeric,max=4"`
	MaxNames             int           `yaml:"max_names"               json:"max_names"               validate:"min=1,max=10"`
	MaxImageURLs         int           `yaml:"max_image_urls"          json:"max_image_urls"          validate:"min=0,max=10"`
}

// ProcessingConfig controls the batch loop.
type ProcessingConfig struct {
	SaveInterval int    `yaml:"save_interval" json:"save_interval" validate:"min=1"`
	MonthlyLimit int    `yaml:"monthly_limit" json:"monthly_limit" validate:"gte=0"`
	NumberColumn string `yaml:"number_column" json:"number_column" validate:"required"`
}

// ImagesConfig controls thumbnail generation and embedding.
type ImagesConfig struct {
	MaxPerRecord    int           `yaml:"max_per_record"   json:"max_per_record"   validate:"min=0,max=3"`
	MaxWidth        int           `yaml:"max_width"        json:"max_width"        validate:"min=1,max=2000"`
	MaxHeight       int           `yaml:"max_height"       json:"max_height"       validate:"min=1,max=2000"`
	Quality         int           `yaml:"quality"          json:"quality"          validate:"min=1,max=100"`
	RowHeight       float64       `yaml:"row_height"       json:"row_height"       validate:"gt=0,max=409"`
	ColumnWidth     float64       `yaml:"column_width"     json:"column_width"     validate:"gt=0,max=255"`
	Embed           bool          `yaml:"embed"            json:"embed"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout" validate:"gt=0"`
}

// CacheConfig controls the on-disk image download cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"             json:"enabled"`
	TTL       time.Duration `yaml:"ttl"                 json:"ttl"       validate:"gte=0"`
	Directory string        `yaml:"directory,omitempty" json:"directory"`
}

// UsageConfig controls the monthly usage ledger.
type UsageConfig struct {
	File              string `yaml:"file,omitempty"     json:"file"`
	WarningThreshold  int    `yaml:"warning_threshold"  json:"warning_threshold"  validate:"gte=0"`
	CriticalThreshold int    `yaml:"critical_threshold" json:"critical_threshold" validate:"gte=0"`
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"          json:"level"  validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format"         json:"format" validate:"omitempty,oneof=console json"`
	File   string `yaml:"file,omitempty" json:"file"`
}

// Config is the full phonelookup configuration.
type Config struct {
	API        APIConfig        `yaml:"api"        json:"api"`
	Lookup     LookupConfig     `yaml:"lookup"     json:"lookup"`
	Processing ProcessingConfig `yaml:"processing" json:"processing"`
	Images     ImagesConfig     `yaml:"images"     json:"images"`
	Cache      CacheConfig      `yaml:"cache"      json:"cache"`
	Usage      UsageConfig      `yaml:"usage"      json:"usage"`
	Logging    LoggingConfig    `yaml:"logging"    json:"logging"`

	configPath string
}

// New returns a Config holding the defaults, bound to the default config path.
func New() *Config {
	cfg := Defaults()
	if dir, err := GetConfigDir(); err == nil {
		cfg.configPath = filepath.Join(dir, configFileName)
	}
	return cfg
}

// Defaults returns a Config populated with default values and no path.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			Host:    DefaultAPIHost,
			Timeout: DefaultAPITimeout,
		},
		Lookup: LookupConfig{
			RequestDelay:         DefaultRequestDelay,
			MaxRetries:           DefaultMaxRetries,
			RetryDelay:           DefaultRetryDelay,
			MaxRetryDelay:        DefaultMaxRetryDelay,
			BackoffMultiplier:    DefaultBackoff,
			MaxRequestsPerMinute: DefaultRequestsPerMin,
			CountryCode:          DefaultCountryCode,
			MaxNames:             DefaultMaxNames,
			MaxImageURLs:         DefaultMaxImageURLs,
		},
		Processing: ProcessingConfig{
			SaveInterval: DefaultSaveInterval,
			MonthlyLimit: DefaultMonthlyLimit,
			NumberColumn: DefaultNumberColumn,
		},
		Images: ImagesConfig{
			MaxPerRecord:    DefaultImagesPerRecord,
			MaxWidth:        DefaultImageWidth,
			MaxHeight:       DefaultImageHeight,
			Quality:         DefaultImageQuality,
			RowHeight:       DefaultRowHeight,
			ColumnWidth:     DefaultColumnWidth,
			Embed:           true,
			DownloadTimeout: DefaultAPITimeout,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     DefaultCacheTTL,
		},
		Usage: UsageConfig{
			WarningThreshold:  DefaultWarnThreshold,
			CriticalThreshold: DefaultCritThreshold,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path on top of the defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigPath returns the file this config is saved to.
//
//nolint:revive // config.ConfigPath reads fine at call sites.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath changes where Save writes.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// Save writes the config as YAML with owner-only permissions.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path is not set")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err = statefile.WriteAtomic(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// RequireAPIKey returns ErrAPIKeyMissing when no key is configured.
func (c *Config) RequireAPIKey() error {
	if c.API.Key == "" {
		return ErrAPIKeyMissing
	}
	return nil
}

// UsageFile returns the usage ledger path, defaulting under the config dir.
func (c *Config) UsageFile() (string, error) {
	if c.Usage.File != "" {
		return c.Usage.File, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "api_usage.json"), nil
}

// CacheDir returns the image cache directory, defaulting under the config dir.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Directory != "" {
		return c.Cache.Directory, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache", "images"), nil
}
