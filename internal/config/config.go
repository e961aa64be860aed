// Package config loads service configuration from an optional YAML file and the environment.
package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata store drivers.
const (
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite3"
	DriverFirestore = "firestore"
)

// Config holds all configuration for the service.
type Config struct {
	Environment   string              `yaml:"environment"`
	Server        ServerConfig        `yaml:"server"`
	CMS           CMSConfig           `yaml:"cms"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Render        RenderConfig        `yaml:"render"`
	Validation    ValidationConfig    `yaml:"validation"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	RoutePrefix       string        `yaml:"route_prefix"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	GracefulShutdown  time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	ScratchDir        string        `yaml:"scratch_dir"`
}

// CMSConfig describes where source documents are published.
type CMSConfig struct {
	BaseURL      string   `yaml:"base_url"`
	AllowedPaths []string `yaml:"allowed_paths"`
}

// StorageConfig names the bucket holding rendered pages.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

// DatabaseConfig selects and configures the metadata store.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// RenderConfig tunes page rendering and the in-process render cache.
type RenderConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheCheckPeriod time.Duration `yaml:"cache_check_period"`
	// Timeout bounds one render and upload of a page, independent of the requests waiting on it.
	Timeout time.Duration `yaml:"timeout"`
	Scale   float64       `yaml:"scale"`
	// Quality is either a fraction in (0, 1] or a percentage in (1, 100].
	Quality float64 `yaml:"quality"`
}

// ValidationConfig tunes document validation.
type ValidationConfig struct {
	ReloadInterval int           `yaml:"reload_interval"`
	StatusStore    string        `yaml:"status_store"`
	StatusTTL      time.Duration `yaml:"status_ttl"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load builds the configuration from defaults, the YAML file at path (if any) and the
// environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port:              8080,
			RoutePrefix:       "/pdf",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			GracefulShutdown:  15 * time.Second,
			MaxUploadBytes:    524288000,
			ScratchDir:        os.TempDir(),
		},
		CMS: CMSConfig{
			AllowedPaths: []string{"assets", "test", "schedule_attachment", "teacher_manual", "thumbnail"},
		},
		Database: DatabaseConfig{
			Driver:     DriverSQLite,
			DSN:        "/tmp/pdf-service.db",
			Port:       5432,
			Collection: "pdf_metadata",
		},
		Render: RenderConfig{
			CacheTTL:         100 * time.Second,
			CacheCheckPeriod: 60 * time.Second,
			Timeout:          5 * time.Minute,
			Scale:            3,
			Quality:          0.99,
		},
		Validation: ValidationConfig{
			ReloadInterval: 20,
			StatusStore:    "memory",
			StatusTTL:      time.Hour,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "pdf-service",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	case DriverFirestore:
		if c.Database.ProjectID == "" {
			return fmt.Errorf("firestore metadata store requires a project id")
		}
	default:
		return fmt.Errorf("invalid metadata driver: %s", c.Database.Driver)
	}
	if c.Validation.StatusStore != "memory" && c.Validation.StatusStore != "redis" {
		return fmt.Errorf("invalid validation status store: %s", c.Validation.StatusStore)
	}
	if c.Validation.ReloadInterval < 1 {
		return fmt.Errorf("validation reload interval must be positive")
	}
	if c.Render.Scale <= 0 {
		return fmt.Errorf("image scale must be positive")
	}
	if c.Render.Quality <= 0 || c.Render.Quality > 100 {
		return fmt.Errorf("jpeg quality must be in (0, 100]")
	}
	if c.Render.CacheTTL <= 0 || c.Render.CacheCheckPeriod <= 0 {
		return fmt.Errorf("render cache ttl and check period must be positive")
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	return nil
}

// IsDevelopment reports whether development-only routes are enabled.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// DatabaseDSN returns the connection string for the SQL metadata store.
func (c *Config) DatabaseDSN() string {
	d := c.Database
	if d.Driver == DriverSQLite || d.DSN != "" && d.Host == "" {
		return d.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// JPEGQuality returns the quality as a percentage.
func (c *Config) JPEGQuality() int {
	q := c.Render.Quality
	if q <= 1 {
		q *= 100
	}
	return int(math.Round(q))
}

// AllowsPath reports whether documents may be served from the CMS path segment.
func (c CMSConfig) AllowsPath(path string) bool {
	for _, p := range c.AllowedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// Location returns the URL of the document name under path.
func (c CMSConfig) Location(path, name string) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("CMS base URL is not configured")
	}
	return url.JoinPath(c.BaseURL, path, name)
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func applyEnvOverrides(cfg *Config) error {
	cfg.Environment = GetEnv("ENVIRONMENT", cfg.Environment)
	cfg.Server.RoutePrefix = GetEnv("ROUTE_PREFIX", cfg.Server.RoutePrefix)
	cfg.Server.ScratchDir = GetEnv("SCRATCH_DIR", cfg.Server.ScratchDir)
	cfg.CMS.BaseURL = GetEnv("CMS_BASE_URL", cfg.CMS.BaseURL)
	if v := os.Getenv("CMS_ALLOWED_PATHS"); v != "" {
		cfg.CMS.AllowedPaths = splitList(v)
	}
	cfg.Storage.Bucket = GetEnv("PAGE_BUCKET", cfg.Storage.Bucket)

	cfg.Database.Driver = GetEnv("METADATA_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = GetEnv("DB_DSN", cfg.Database.DSN)
	cfg.Database.Host = GetEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.User = GetEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = GetEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = GetEnv("DB_DATABASE", cfg.Database.Database)
	cfg.Database.ProjectID = GetEnv("PROJECT_ID", cfg.Database.ProjectID)
	cfg.Database.Collection = GetEnv("FIRESTORE_COLLECTION", cfg.Database.Collection)

	cfg.Validation.StatusStore = GetEnv("VALIDATION_STATUS_STORE", cfg.Validation.StatusStore)
	cfg.Redis.Addr = GetEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = GetEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Observability.LogLevel = GetEnv("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = GetEnv("LOG_FORMAT", cfg.Observability.LogFormat)

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Server.Port},
		{"DB_PORT", &cfg.Database.Port},
		{"REDIS_DB", &cfg.Redis.DB},
		{"VALIDATION_RELOAD_INTERVAL", &cfg.Validation.ReloadInterval},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RENDER_CACHE_TTL", &cfg.Render.CacheTTL},
		{"RENDER_CACHE_CHECK_PERIOD", &cfg.Render.CacheCheckPeriod},
		{"RENDER_TIMEOUT", &cfg.Render.Timeout},
		{"VALIDATION_STATUS_TTL", &cfg.Validation.StatusTTL},
	}
	for _, e := range durations {
		if v := os.Getenv(e.key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = d
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"IMAGE_SCALE", &cfg.Render.Scale},
		{"JPEG_QUALITY", &cfg.Render.Quality},
	}
	for _, e := range floats {
		if v := os.Getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = f
		}
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Server.MaxUploadBytes = n
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
