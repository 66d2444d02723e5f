// ABOUTME: Configuration loading and parsing for showcase-backend
// ABOUTME: Supports YAML files, .env files, environment overrides, and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when SHOWCASE_CONFIG is not set and the file exists.
const DefaultConfigFile = "showcase.yaml"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Config represents the complete showcase-backend configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Storage   StorageConfig   `yaml:"storage"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Cache     CacheConfig     `yaml:"cache"`
	Debug     bool            `yaml:"debug"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout"`
}

// GatewayConfig holds the storage gateway endpoint and credentials
type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Account   string        `yaml:"account"`
	Message   string        `yaml:"message"`
	Signature string        `yaml:"signature"`
	Territory string        `yaml:"territory"`
	Timeout   time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// StorageConfig selects and locates the persistence backend
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Path is the SQLite database file. Defaults to <data_dir>/showcase.db.
	Path    string `yaml:"path"`
	DataDir string `yaml:"data_dir"`
	// ImportLegacy copies products.json/personas.json from data_dir into an
	// empty SQLite database at startup.
	ImportLegacy bool `yaml:"import_legacy"`
}

// CORSConfig holds the allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig holds per-client limits for the upload and register routes
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig holds the metadata proxy cache configuration
type CacheConfig struct {
	MetadataTTL        time.Duration `yaml:"-"`
	MetadataMaxEntries int           `yaml:"metadata_max_entries"`

	MetadataTTLRaw string `yaml:"metadata_ttl"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			MaxUploadBytes:    32 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL: "https://deoss-sgp.cess.network",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:      BackendSQLite,
			DataDir:      "data",
			ImportLegacy: true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Cache: CacheConfig{
			MetadataTTL:        10 * time.Minute,
			MetadataMaxEntries: 1024,
		},
	}
}

// LoadDefault loads .env from the working directory, then the file named by
// SHOWCASE_CONFIG, else ./showcase.yaml if it exists, else defaults only.
// Environment overrides are applied in every case.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path := os.Getenv("SHOWCASE_CONFIG"); path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return Load(DefaultConfigFile)
	}

	cfg := Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file from the given path on top of the defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies environment overrides, fills derived paths and validates.
func finish(cfg *Config) error {
	if err := applyEnv(cfg); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.Storage.DataDir, "showcase.db")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv lets the environment override the file for the settings the
// deployment scripts set directly.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"CESS_GATEWAY_URL":         &cfg.Gateway.BaseURL,
		"CESS_ACCOUNT":             &cfg.Gateway.Account,
		"CESS_MESSAGE":             &cfg.Gateway.Message,
		"CESS_SIGNATURE":           &cfg.Gateway.Signature,
		"CESS_TERRITORY":           &cfg.Gateway.Territory,
		"HOST":                     &cfg.Server.Host,
		"SHOWCASE_DATA_DIR":        &cfg.Storage.DataDir,
		"SHOWCASE_STORAGE_BACKEND": &cfg.Storage.Backend,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway.base_url must be an http(s) URL, got %q", c.Gateway.BaseURL)
	}

	switch c.Storage.Backend {
	case BackendSQLite, BackendJSON:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendJSON, c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive when enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Cache.MetadataMaxEntries < 1 {
		return fmt.Errorf("cache.metadata_max_entries must be positive")
	}
	if c.Cache.MetadataTTL <= 0 {
		return fmt.Errorf("cache.metadata_ttl must be positive, got %s", c.Cache.MetadataTTL)
	}

	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// FileEndpoint returns the gateway URL files are uploaded to and fetched from.
func (g GatewayConfig) FileEndpoint() string {
	return strings.TrimRight(g.BaseURL, "/") + "/file"
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"gateway.timeout", cfg.Gateway.TimeoutRaw, &cfg.Gateway.Timeout},
		{"cache.metadata_ttl", cfg.Cache.MetadataTTLRaw, &cfg.Cache.MetadataTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}
