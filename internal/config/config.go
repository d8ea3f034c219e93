// Package config provides configuration management for the tasks service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/imagestore"
	"github.com/vyrodovalexey/taskcache/internal/store"
	"github.com/vyrodovalexey/taskcache/internal/store/sqlstore"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultAuthMode        = string(auth.MethodNone)
	DefaultSourceKind      = string(store.KindMemory)
	DefaultRemoteTimeout   = 10 * time.Second
	DefaultFakeLatency     = 2 * time.Second
	DefaultImageStore      = string(imagestore.DriverNone)
	DefaultS3Region        = "us-east-1"
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvAuthMode        = "APP_AUTH_MODE"
	EnvBasicAuthUsers  = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys         = "APP_API_KEYS" //nolint:gosec // env var name, not a credential

	EnvSourceKind    = "APP_SOURCE_KIND"
	EnvSQLitePath    = "APP_SQLITE_PATH"
	EnvPostgresDSN   = "APP_POSTGRES_DSN"
	EnvRemoteURL     = "APP_REMOTE_URL"
	EnvRemoteTimeout = "APP_REMOTE_TIMEOUT"
	EnvRemoteAPIKey  = "APP_REMOTE_API_KEY" //nolint:gosec // env var name, not a credential
	EnvFakeLatency   = "APP_FAKE_LATENCY"
	EnvSeedTasks     = "APP_SEED_TASKS"

	EnvImageStore        = "APP_IMAGE_STORE"
	EnvS3Bucket          = "APP_S3_BUCKET"
	EnvS3Region          = "APP_S3_REGION"
	EnvS3Endpoint        = "APP_S3_ENDPOINT"
	EnvS3PathStyle       = "APP_S3_PATH_STYLE"
	EnvS3AccessKeyID     = "APP_S3_ACCESS_KEY_ID"     //nolint:gosec // env var name, not a credential
	EnvS3SecretAccessKey = "APP_S3_SECRET_ACCESS_KEY" //nolint:gosec // env var name, not a credential
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string
	// Format: "user:bcrypt_hash[:scope],...".
	BasicAuthUsers string
	// Format: "key:name[:scope],...".
	APIKeys string

	// Task source settings.
	SourceKind    string
	SQLitePath    string
	PostgresDSN   string
	RemoteURL     string
	RemoteTimeout time.Duration
	RemoteAPIKey  string
	FakeLatency   time.Duration
	SeedTasks     bool

	// Image store settings.
	ImageStore        string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New("at least one auth config must be provided when auth mode is multi")
	ErrInvalidSourceKind      = errors.New("source kind must be one of: memory, fake, sqlite, postgres, remote")
	ErrRemoteURLRequired      = errors.New("remote URL must be set when source kind is remote")
	ErrInvalidRemoteTimeout   = errors.New("remote timeout must be positive")
	ErrInvalidFakeLatency     = errors.New("fake latency must not be negative")
	ErrInvalidImageStore      = errors.New("image store must be one of: none, memory, s3")
	ErrS3BucketRequired       = errors.New("S3 bucket must be set when image store is s3")
	ErrS3CredentialsPartial   = errors.New("S3 access key ID and secret access key must be set together")
)

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		AuthMode:        DefaultAuthMode,
		SourceKind:      DefaultSourceKind,
		SQLitePath:      sqlstore.DefaultSQLitePath,
		PostgresDSN:     sqlstore.DefaultPostgresDSN,
		RemoteTimeout:   DefaultRemoteTimeout,
		FakeLatency:     DefaultFakeLatency,
		ImageStore:      DefaultImageStore,
		S3Region:        DefaultS3Region,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}
	c.loadAuthEnv()
	if err := c.loadSourceEnv(); err != nil {
		return err
	}
	return c.loadImageEnv()
}

func (c *Config) loadServerEnv() error {
	if err := envInt(EnvServerPort, &c.ServerPort); err != nil {
		return err
	}
	envString(EnvLogLevel, &c.LogLevel)
	if err := envDuration(EnvShutdownTimeout, &c.ShutdownTimeout); err != nil {
		return err
	}
	return envBool(EnvMetricsEnabled, &c.MetricsEnabled)
}

func (c *Config) loadAuthEnv() {
	envString(EnvAuthMode, &c.AuthMode)
	envString(EnvBasicAuthUsers, &c.BasicAuthUsers)
	envString(EnvAPIKeys, &c.APIKeys)
}

func (c *Config) loadSourceEnv() error {
	envString(EnvSourceKind, &c.SourceKind)
	envString(EnvSQLitePath, &c.SQLitePath)
	envString(EnvPostgresDSN, &c.PostgresDSN)
	envString(EnvRemoteURL, &c.RemoteURL)
	envString(EnvRemoteAPIKey, &c.RemoteAPIKey)
	if err := envDuration(EnvRemoteTimeout, &c.RemoteTimeout); err != nil {
		return err
	}
	if err := envDuration(EnvFakeLatency, &c.FakeLatency); err != nil {
		return err
	}
	return envBool(EnvSeedTasks, &c.SeedTasks)
}

func (c *Config) loadImageEnv() error {
	envString(EnvImageStore, &c.ImageStore)
	envString(EnvS3Bucket, &c.S3Bucket)
	envString(EnvS3Region, &c.S3Region)
	envString(EnvS3Endpoint, &c.S3Endpoint)
	envString(EnvS3AccessKeyID, &c.S3AccessKeyID)
	envString(EnvS3SecretAccessKey, &c.S3SecretAccessKey)
	return envBool(EnvS3PathStyle, &c.S3PathStyle)
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) error {
	if val := os.Getenv(name); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

func envBool(name string, dst *bool) error {
	if val := os.Getenv(name); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	if val := os.Getenv(name); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	return c.validateImageStore()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	return nil
}

func (c *Config) validateAuth() error {
	method, err := auth.ParseMethod(c.AuthMode)
	if err != nil {
		return ErrInvalidAuthMode
	}

	switch method {
	case auth.MethodBasic:
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case auth.MethodAPIKey:
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case auth.MethodMulti:
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	kind, err := store.ParseKind(c.SourceKind)
	if err != nil {
		return ErrInvalidSourceKind
	}

	if kind == store.KindRemote && c.RemoteURL == "" {
		return ErrRemoteURLRequired
	}
	if c.RemoteTimeout <= 0 {
		return ErrInvalidRemoteTimeout
	}
	if c.FakeLatency < 0 {
		return ErrInvalidFakeLatency
	}
	return nil
}

func (c *Config) validateImageStore() error {
	driver, err := imagestore.ParseDriver(c.ImageStore)
	if err != nil {
		return ErrInvalidImageStore
	}

	if driver == imagestore.DriverS3 && c.S3Bucket == "" {
		return ErrS3BucketRequired
	}
	if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
		return ErrS3CredentialsPartial
	}
	return nil
}

// Kind returns the parsed task source kind. Validate must have succeeded.
func (c *Config) Kind() store.Kind {
	kind, _ := store.ParseKind(c.SourceKind)
	return kind
}

// S3Config returns the S3 image store settings.
func (c *Config) S3Config() imagestore.S3Config {
	return imagestore.S3Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		PathStyle:       c.S3PathStyle,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
