package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Overwrite policies for destinations that already exist
const (
	OverwriteSkip      = "skip"
	OverwriteReplace   = "overwrite"
	OverwriteRename    = "rename"
	envPrefix          = "MEDIAGRAB_"
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultOffsetLimit = 50
)

// Config is resolved once before a run starts and is read-only afterwards
type Config struct {
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Filter     FilterConfig     `yaml:"filter" json:"filter"`
	Acquire    AcquireConfig    `yaml:"acquire" json:"acquire"`
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// HTTPConfig holds transport settings shared by every request
type HTTPConfig struct {
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	CookiesFile string        `yaml:"cookies_file" json:"cookies_file"`
	// APIKey is sent as the Basic-auth user name to hosts that accept one
	APIKey string `yaml:"-" json:"-"`
}

// RateLimitConfig controls the mandatory delay between network calls
type RateLimitConfig struct {
	RequestDelay      time.Duration `yaml:"request_delay" json:"request_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter            time.Duration `yaml:"jitter" json:"jitter"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds the acquisition retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// OutputConfig holds destination layout settings
type OutputConfig struct {
	BaseDirectory  string `yaml:"base_directory" json:"base_directory"`
	FilenamePrefix string `yaml:"filename_prefix" json:"filename_prefix"`
	Overwrite      string `yaml:"overwrite" json:"overwrite"`
	FlatLayout     bool   `yaml:"flat_layout" json:"flat_layout"`
}

// FilterConfig holds noise filter policy
type FilterConfig struct {
	ExcludeExtensions []string `yaml:"exclude_extensions" json:"exclude_extensions"`
	Probe             bool     `yaml:"probe" json:"probe"`
	MinBytes          int64    `yaml:"min_bytes" json:"min_bytes"`
	SmallSide         int      `yaml:"small_side" json:"small_side"`
	SquareSide        int      `yaml:"square_side" json:"square_side"`
	// ExtraPresets are WxH strings appended to the default thumbnail presets
	ExtraPresets []string `yaml:"extra_presets" json:"extra_presets"`
	// MaxRejectRatio above which probe verdicts are discarded in favour of
	// the pattern-filtered set; 0 disables the guard
	MaxRejectRatio float64 `yaml:"max_reject_ratio" json:"max_reject_ratio"`
	Keywords       []string `yaml:"keywords" json:"keywords"`
}

// AcquireConfig holds download validation settings
type AcquireConfig struct {
	ImageFloor   int64 `yaml:"image_floor" json:"image_floor"`
	VideoFloor   int64 `yaml:"video_floor" json:"video_floor"`
	Concurrent   int   `yaml:"concurrent" json:"concurrent"`
	MinVideoSize int64 `yaml:"min_video_size" json:"min_video_size"`
}

// PaginationConfig holds page discovery settings
type PaginationConfig struct {
	// Pages selects which discovered pages to crawl, e.g. "1-5" or "1,3"
	Pages                  string `yaml:"pages" json:"pages"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	OffsetPageSize         int    `yaml:"offset_page_size" json:"offset_page_size"`
}

// BrowserConfig holds headless rendering settings
type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Headless bool          `yaml:"headless" json:"headless"`
	ExecPath string        `yaml:"exec_path" json:"exec_path"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Settle   time.Duration `yaml:"settle" json:"settle"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with the pipeline's standard constants
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent: defaultUserAgent,
			Timeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestDelay:      500 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			Jitter:            250 * time.Millisecond,
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
			Overwrite:     OverwriteSkip,
		},
		Filter: FilterConfig{
			MinBytes:       5000,
			SmallSide:      100,
			SquareSide:     150,
			MaxRejectRatio: 0.8,
		},
		Acquire: AcquireConfig{
			ImageFloor:   2048,
			VideoFloor:   10 << 10,
			MinVideoSize: 1 << 20,
			Concurrent:   1,
		},
		Pagination: PaginationConfig{
			MaxConsecutiveFailures: 10,
			OffsetPageSize:         defaultOffsetLimit,
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  60 * time.Second,
			Settle:   3 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides settings from MEDIAGRAB_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	setString("USER_AGENT", &c.HTTP.UserAgent)
	setString("COOKIES_FILE", &c.HTTP.CookiesFile)
	setString("API_KEY", &c.HTTP.APIKey)
	setString("OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("PREFIX", &c.Output.FilenamePrefix)
	setString("OVERWRITE", &c.Output.Overwrite)
	setString("PAGES", &c.Pagination.Pages)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)
	setString("CHROME_PATH", &c.Browser.ExecPath)
	setInt("MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setInt("CONCURRENT", &c.Acquire.Concurrent)
	setBool("PROBE", &c.Filter.Probe)
	setBool("BROWSER", &c.Browser.Enabled)
	setDuration("REQUEST_DELAY", &c.RateLimit.RequestDelay)
	setDuration("TIMEOUT", &c.HTTP.Timeout)

	if v := os.Getenv(envPrefix + "EXCLUDE_EXT"); v != "" {
		c.Filter.ExcludeExtensions = splitList(v)
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the standard locations; finding nothing is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// DefaultPath is where `config init` writes a new file
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "mediagrab", "config.yaml")
}

func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".mediagrab.yaml",
		".mediagrab.yml",
		filepath.Join(home, ".config", "mediagrab", "config.yaml"),
		filepath.Join(home, ".config", "mediagrab", "config.yml"),
		filepath.Join(home, ".mediagrab.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.RateLimit.RequestDelay < 0 {
		errs = append(errs, errors.New("request delay cannot be negative"))
	}
	if c.RateLimit.MaxDelay < c.RateLimit.RequestDelay {
		errs = append(errs, errors.New("max delay must not be below request delay"))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 5 {
		errs = append(errs, errors.New("max attempts must be between 1 and 5"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry delays are inconsistent"))
	}
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch c.Output.Overwrite {
	case OverwriteSkip, OverwriteReplace, OverwriteRename:
	default:
		errs = append(errs, fmt.Errorf("invalid overwrite policy %q", c.Output.Overwrite))
	}
	if c.Filter.MinBytes < 0 || c.Filter.SmallSide < 0 || c.Filter.SquareSide < 0 {
		errs = append(errs, errors.New("filter thresholds cannot be negative"))
	}
	if c.Filter.MaxRejectRatio < 0 || c.Filter.MaxRejectRatio > 1 {
		errs = append(errs, errors.New("max reject ratio must be within [0,1]"))
	}
	if c.Acquire.ImageFloor < 1 || c.Acquire.VideoFloor < c.Acquire.ImageFloor {
		errs = append(errs, errors.New("video floor must be at least the image floor, which must be positive"))
	}
	if c.Acquire.Concurrent < 1 || c.Acquire.Concurrent > 10 {
		errs = append(errs, errors.New("concurrent downloads must be between 1 and 10"))
	}
	if c.Pagination.MaxConsecutiveFailures < 1 {
		errs = append(errs, errors.New("max consecutive failures must be positive"))
	}
	if c.Pagination.OffsetPageSize < 1 {
		errs = append(errs, errors.New("offset page size must be positive"))
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags applies values set on the command line. Only keys
// present in the map are applied, so zero values can be set explicitly.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["prefix"].(string); ok {
		c.Output.FilenamePrefix = v
	}
	if v, ok := flags["overwrite"].(string); ok && v != "" {
		c.Output.Overwrite = v
	}
	if v, ok := flags["flat"].(bool); ok {
		c.Output.FlatLayout = v
	}
	if v, ok := flags["cookies"].(string); ok && v != "" {
		c.HTTP.CookiesFile = v
	}
	if v, ok := flags["api-key"].(string); ok && v != "" {
		c.HTTP.APIKey = v
	}
	if v, ok := flags["pages"].(string); ok && v != "" {
		c.Pagination.Pages = v
	}
	if v, ok := flags["probe"].(bool); ok {
		c.Filter.Probe = v
	}
	if v, ok := flags["exclude-ext"].([]string); ok && len(v) > 0 {
		c.Filter.ExcludeExtensions = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Acquire.Concurrent = v
	}
	if v, ok := flags["retries"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["delay"].(time.Duration); ok && v > 0 {
		c.RateLimit.RequestDelay = v
	}
	if v, ok := flags["browser"].(bool); ok {
		c.Browser.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load resolves configuration from all sources.
// Precedence: flags > environment (including .env) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mediagrab.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
