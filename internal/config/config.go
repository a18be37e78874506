package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Duration is a time.Duration that reads and writes as "24h", "90s", etc.
type Duration time.Duration

// UnmarshalText parses Go duration syntax.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds application configuration.
type Config struct {
	// StorageDir is the root for videos/, renders/ and the documents database.
	StorageDir string `json:"storage_dir,omitempty" toml:"storage_dir"`

	Bind string `json:"bind,omitempty" toml:"bind"`
	Port int    `json:"port,omitempty" toml:"port"`

	// AllowedOrigins lists CORS origins for the HTTP API.
	AllowedOrigins []string `json:"allowed_origins,omitempty" toml:"allowed_origins"`

	// FFmpegPath is the rendering engine binary.
	FFmpegPath string `json:"ffmpeg_path,omitempty" toml:"ffmpeg_path"`

	// FPS is the fixed composition frame rate.
	FPS int `json:"fps,omitempty" toml:"fps"`

	// RenderConcurrency is passed through to the engine as its worker count.
	// Either an integer ("4") or a share of logical CPUs ("50%").
	RenderConcurrency string `json:"render_concurrency,omitempty" toml:"render_concurrency"`

	// MaxConcurrentRenders bounds how many jobs run the engine at once.
	// Jobs waiting for a slot stay pending.
	MaxConcurrentRenders int `json:"max_concurrent_renders,omitempty" toml:"max_concurrent_renders"`

	// MinCRF and MaxCRF bound the quality -> compression mapping.
	// quality 100 maps to MinCRF, quality 0 to MaxCRF.
	MinCRF int `json:"min_crf,omitempty" toml:"min_crf"`
	MaxCRF int `json:"max_crf,omitempty" toml:"max_crf"`

	RetentionTTL    Duration `json:"retention_ttl,omitempty" toml:"retention_ttl"`
	CleanupInterval Duration `json:"cleanup_interval,omitempty" toml:"cleanup_interval"`
	// PollInterval is advertised to clients polling job status.
	PollInterval Duration `json:"poll_interval,omitempty" toml:"poll_interval"`

	LogLevel  string `json:"log_level,omitempty" toml:"log_level"`
	LogFormat string `json:"log_format,omitempty" toml:"log_format"`

	// DBMaxOpenConns limits open connections to the documents database.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" toml:"db_max_open_conns"`
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" toml:"db_max_idle_conns"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" toml:"disabled_tools"`
	// DisabledTypes disables every MCP tool of a type ("render", "document", ...).
	DisabledTypes []string `json:"disabled_types,omitempty" toml:"disabled_types"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		StorageDir:           "./storage",
		Bind:                 "127.0.0.1",
		Port:                 8000,
		AllowedOrigins:       []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"},
		FFmpegPath:           "ffmpeg",
		FPS:                  30,
		RenderConcurrency:    "50%",
		MaxConcurrentRenders: 2,
		MinCRF:               18,
		MaxCRF:               40,
		RetentionTTL:         Duration(24 * time.Hour),
		CleanupInterval:      Duration(time.Hour),
		PollInterval:         Duration(time.Second),
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// Load loads configuration from baseDir/config.toml, falling back to
// baseDir/config.json. Returns default config if neither exists.
// Environment overrides are not applied; see LoadWithEnv.
func Load(baseDir string) (*Config, error) {
	for _, name := range []string{"config.toml", "config.json"} {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); err == nil {
			return loadFile(path)
		}
	}
	return DefaultConfig(), nil
}

// LoadWithEnv loads the file config and applies STENO_* environment overrides.
func LoadWithEnv(baseDir string) (*Config, error) {
	cfg, err := Load(baseDir)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// ApplyEnv overrides fields from STENO_* variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}

	str("STENO_STORAGE_DIR", &cfg.StorageDir)
	str("STENO_BIND", &cfg.Bind)
	str("STENO_FFMPEG", &cfg.FFmpegPath)
	str("STENO_RENDER_CONCURRENCY", &cfg.RenderConcurrency)
	str("STENO_LOG_LEVEL", &cfg.LogLevel)
	str("STENO_LOG_FORMAT", &cfg.LogFormat)

	if v := strings.TrimSpace(getenv("STENO_ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = mergeStringSlice(nil, strings.Split(v, ","))
	}

	for key, dst := range map[string]*int{
		"STENO_PORT":                   &cfg.Port,
		"STENO_FPS":                    &cfg.FPS,
		"STENO_MIN_CRF":                &cfg.MinCRF,
		"STENO_MAX_CRF":                &cfg.MaxCRF,
		"STENO_MAX_CONCURRENT_RENDERS": &cfg.MaxConcurrentRenders,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*Duration{
		"STENO_RETENTION_TTL":    &cfg.RetentionTTL,
		"STENO_CLEANUP_INTERVAL": &cfg.CleanupInterval,
		"STENO_POLL_INTERVAL":    &cfg.PollInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.MinCRF < 0 || c.MaxCRF > 63 || c.MinCRF > c.MaxCRF {
		return fmt.Errorf("crf bounds must satisfy 0 <= min_crf <= max_crf <= 63, got %d..%d", c.MinCRF, c.MaxCRF)
	}
	if c.RetentionTTL <= 0 {
		return fmt.Errorf("retention_ttl must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	if _, err := ParseConcurrency(c.RenderConcurrency, 1); err != nil {
		return err
	}
	return nil
}

// Workers resolves RenderConcurrency against the host's logical CPU count.
func (c *Config) Workers() int {
	cpus, err := cpu.Counts(true)
	if err != nil || cpus <= 0 {
		cpus = 1
	}
	n, err := ParseConcurrency(c.RenderConcurrency, cpus)
	if err != nil {
		return 1
	}
	return n
}

// ParseConcurrency parses "N" or "N%" (share of cpus). The result is at least 1.
// An empty value means all cpus.
func ParseConcurrency(value string, cpus int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return max(cpus, 1), nil
	}
	if pct, ok := strings.CutSuffix(value, "%"); ok {
		p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || p <= 0 || p > 100 {
			return 0, fmt.Errorf("render_concurrency: %q must be a percentage in (0, 100]", value)
		}
		return max(int(float64(cpus)*p/100), 1), nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("render_concurrency: %q must be a positive integer or N%%", value)
	}
	return n, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.StorageDir != "" {
		result.StorageDir = overlay.StorageDir
	}
	if overlay.Bind != "" {
		result.Bind = overlay.Bind
	}
	if overlay.Port != 0 {
		result.Port = overlay.Port
	}
	if overlay.FFmpegPath != "" {
		result.FFmpegPath = overlay.FFmpegPath
	}
	if overlay.FPS != 0 {
		result.FPS = overlay.FPS
	}
	if overlay.RenderConcurrency != "" {
		result.RenderConcurrency = overlay.RenderConcurrency
	}
	if overlay.MaxConcurrentRenders != 0 {
		result.MaxConcurrentRenders = overlay.MaxConcurrentRenders
	}
	if overlay.MinCRF != 0 {
		result.MinCRF = overlay.MinCRF
	}
	if overlay.MaxCRF != 0 {
		result.MaxCRF = overlay.MaxCRF
	}
	if overlay.RetentionTTL != 0 {
		result.RetentionTTL = overlay.RetentionTTL
	}
	if overlay.CleanupInterval != 0 {
		result.CleanupInterval = overlay.CleanupInterval
	}
	if overlay.PollInterval != 0 {
		result.PollInterval = overlay.PollInterval
	}
	if overlay.LogLevel != "" {
		result.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		result.LogFormat = overlay.LogFormat
	}
	if overlay.DBMaxOpenConns != 0 {
		result.DBMaxOpenConns = overlay.DBMaxOpenConns
	}
	if overlay.DBMaxIdleConns != 0 {
		result.DBMaxIdleConns = overlay.DBMaxIdleConns
	}

	// Origins replace rather than merge so a file can narrow the defaults.
	if len(overlay.AllowedOrigins) > 0 {
		result.AllowedOrigins = mergeStringSlice(nil, overlay.AllowedOrigins)
	}
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return &result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
