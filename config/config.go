// Package config provides configuration loading, validation and hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when no path is given. A missing default file is not
// an error: configuration then comes from the environment and defaults.
const DefaultPath = "apigen.yaml"

// Adapter names accepted in database.adapter.
const (
	AdapterMemory = "memory"
	AdapterMongo  = "mongo"
	AdapterSQLite = "sqlite"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Models   ModelsConfig   `yaml:"models"`
	Logging  LoggingConfig  `yaml:"logging"`
	Errors   ErrorsConfig   `yaml:"errors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"APIGEN_SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"APIGEN_SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"APIGEN_SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"APIGEN_SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout"  env:"APIGEN_SERVER_REQUEST_TIMEOUT"  env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"APIGEN_SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig enables HTTPS from certificate files or ACME.
type TLSConfig struct {
	Enabled  bool     `yaml:"enabled"   env:"APIGEN_TLS_ENABLED"`
	CertFile string   `yaml:"cert_file" env:"APIGEN_TLS_CERT_FILE"`
	KeyFile  string   `yaml:"key_file"  env:"APIGEN_TLS_KEY_FILE"`
	Domains  []string `yaml:"domains"   env:"APIGEN_TLS_DOMAINS" env-separator:","`
	Email    string   `yaml:"email"     env:"APIGEN_TLS_EMAIL"`
	CacheDir string   `yaml:"cache_dir" env:"APIGEN_TLS_CACHE_DIR" env-default:"certs"`
	Staging  bool     `yaml:"staging"   env:"APIGEN_TLS_STAGING"`

	// HTTPAddr serves ACME challenges and redirects to HTTPS. Empty
	// disables the plain HTTP listener.
	HTTPAddr string `yaml:"http_addr" env:"APIGEN_TLS_HTTP_ADDR"`
}

func (t TLSConfig) equal(o TLSConfig) bool {
	return t.Enabled == o.Enabled &&
		t.CertFile == o.CertFile &&
		t.KeyFile == o.KeyFile &&
		slices.Equal(t.Domains, o.Domains) &&
		t.Email == o.Email &&
		t.CacheDir == o.CacheDir &&
		t.Staging == o.Staging &&
		t.HTTPAddr == o.HTTPAddr
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// DatabaseConfig selects and configures the storage adapter.
type DatabaseConfig struct {
	Adapter  string `yaml:"adapter"  env:"APIGEN_DATABASE_ADAPTER"  env-default:"memory"`
	Host     string `yaml:"host"     env:"APIGEN_DATABASE_HOST"`
	Port     int    `yaml:"port"     env:"APIGEN_DATABASE_PORT"`
	Database string `yaml:"database" env:"APIGEN_DATABASE_NAME"`
	URI      string `yaml:"uri"      env:"APIGEN_DATABASE_URI"`
	DSN      string `yaml:"dsn"      env:"APIGEN_DATABASE_DSN"`
}

// MongoURI returns uri when set, otherwise mongodb://host[:port]/database.
func (d DatabaseConfig) MongoURI() string {
	if d.URI != "" {
		return d.URI
	}
	host := d.Host
	if d.Port != 0 {
		host += ":" + strconv.Itoa(d.Port)
	}
	return "mongodb://" + host + "/" + d.Database
}

// ModelsConfig locates model definition files.
type ModelsConfig struct {
	Dir             string `yaml:"dir"              env:"APIGEN_MODELS_DIR"              env-default:"models"`
	DisableDefaults bool   `yaml:"disable_defaults" env:"APIGEN_MODELS_DISABLE_DEFAULTS"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"APIGEN_LOG_LEVEL"  env-default:"info"` // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"APIGEN_LOG_FORMAT" env-default:"json"` // "json" or "console"
}

// ErrorsConfig controls error logging by the HTTP error responder.
type ErrorsConfig struct {
	Environment       string `yaml:"environment"         env:"APIGEN_ENV"                       env-default:"development"`
	SuppressDevErrors bool   `yaml:"suppress_dev_errors" env:"APIGEN_ERRORS_SUPPRESS_DEV_ERRORS"`
}

// LogErrors reports whether failed requests are logged before the
// response is written.
func (e ErrorsConfig) LogErrors() bool {
	return e.Environment != "production" && !e.SuppressDevErrors
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"APIGEN_METRICS_ENABLED"`
	Path    string `yaml:"path"    env:"APIGEN_METRICS_PATH"    env-default:"/metrics"`
}

// OpenAPIConfig configures the OpenAPI document and Swagger UI.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled" env:"APIGEN_OPENAPI_ENABLED"`
}

// AuthConfig configures the built-in User and AccessToken models.
type AuthConfig struct {
	BcryptCost int           `yaml:"bcrypt_cost" env:"APIGEN_AUTH_BCRYPT_COST" env-default:"10"`
	TokenTTL   time.Duration `yaml:"token_ttl"   env:"APIGEN_AUTH_TOKEN_TTL"   env-default:"336h"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// An empty path means DefaultPath; if that file does not exist,
// configuration is loaded from ENV + defaults only. An explicit path must
// exist.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// load is Load that also returns the file actually read, or "".
func load(path string) (*Config, string, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, "", fmt.Errorf("config: read %s: %w", path, err)
		}
	case explicit:
		return nil, "", fmt.Errorf("config: file %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, "", fmt.Errorf("config: read env: %w", err)
		}
		path = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, path, nil
}

// Usage returns the environment variable help text.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "console"}
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535 (got %d)", c.Server.Port))
	}

	switch c.Database.Adapter {
	case AdapterMemory:
	case AdapterMongo:
		if c.Database.URI == "" && (c.Database.Host == "" || c.Database.Database == "") {
			errs = append(errs, errors.New("database: mongo needs uri, or host and database"))
		}
	case AdapterSQLite:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database: sqlite needs dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.adapter %q is not one of memory, mongo, sqlite", c.Database.Adapter))
	}

	if t := c.Server.TLS; t.Enabled {
		files := t.CertFile != "" && t.KeyFile != ""
		if !files && len(t.Domains) == 0 {
			errs = append(errs, errors.New("server.tls: need cert_file and key_file, or domains"))
		}
		if (t.CertFile == "") != (t.KeyFile == "") {
			errs = append(errs, errors.New("server.tls: cert_file and key_file go together"))
		}
	}

	if !slices.Contains(validLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of %v", c.Logging.Level, validLevels))
	}
	if !slices.Contains(validFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format %q is not one of %v", c.Logging.Format, validFormats))
	}

	if c.Auth.TokenTTL < time.Second {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be at least 1s (got %s)", c.Auth.TokenTTL))
	}

	return errors.Join(errs...)
}
