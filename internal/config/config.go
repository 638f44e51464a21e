// Package config loads blueprintd configuration from an optional YAML file
// with BLUEPRINT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all blueprintd configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
	Debug   DebugConfig   `yaml:"debug"`
	// DeletePolicy is refuse or cascade.
	DeletePolicy string `yaml:"delete_policy"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects where blueprint exports are written.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs|memory|s3
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 export driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// HTTPConfig configures the editor API listener.
type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DebugConfig controls the diagnostics blueprintd exposes beside /metrics.
type DebugConfig struct {
	// Vars mounts expvar at /debug/vars.
	Vars bool `yaml:"vars"`
	// Trace writes one JSON line per service operation: "" disables it,
	// "stderr" or "stdout" select a stream, anything else is a file path.
	Trace string `yaml:"trace"`
}

// Default returns the configuration used when no file or env overrides are present.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "blueprint.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "exports",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Logging:      LoggingConfig{Level: "info"},
		Debug:        DebugConfig{Vars: true},
		DeletePolicy: "refuse",
	}
}

// Load reads path (if it exists), applies env overrides and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		"BLUEPRINT_STORAGE_DRIVER":        &c.Storage.Driver,
		"BLUEPRINT_SQLITE_PATH":           &c.Storage.SQLitePath,
		"BLUEPRINT_POSTGRES_DSN":          &c.Storage.PostgresDSN,
		"BLUEPRINT_BLOB_DRIVER":           &c.Blob.Driver,
		"BLUEPRINT_BLOB_FS_ROOT":          &c.Blob.FSRoot,
		"BLUEPRINT_BLOB_S3_BUCKET":        &c.Blob.S3.Bucket,
		"BLUEPRINT_BLOB_S3_REGION":        &c.Blob.S3.Region,
		"BLUEPRINT_BLOB_S3_ENDPOINT":      &c.Blob.S3.Endpoint,
		"BLUEPRINT_BLOB_S3_ACCESS_KEY_ID": &c.Blob.S3.AccessKeyID,
		"BLUEPRINT_BLOB_S3_SECRET":        &c.Blob.S3.SecretAccessKey,
		"BLUEPRINT_DELETE_POLICY":         &c.DeletePolicy,
		"BLUEPRINT_HTTP_ADDR":             &c.HTTP.Addr,
		"BLUEPRINT_LOG_LEVEL":             &c.Logging.Level,
		"BLUEPRINT_TRACE":                 &c.Debug.Trace,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	if v := os.Getenv("BLUEPRINT_BLOB_S3_PATH_STYLE"); v != "" {
		c.Blob.S3.UsePathStyle = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BLUEPRINT_DEBUG_VARS"); v != "" {
		c.Debug.Vars = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage driver %q (valid: memory, sqlite, postgres)", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("invalid blob driver %q (valid: fs, memory, s3)", c.Blob.Driver)
	}
	switch c.DeletePolicy {
	case "", "refuse", "cascade":
	default:
		return fmt.Errorf("invalid delete policy %q (valid: refuse, cascade)", c.DeletePolicy)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if _, err := time.ParseDuration(c.HTTP.ShutdownTimeout); c.HTTP.ShutdownTimeout != "" && err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	return nil
}

// ShutdownTimeout returns the graceful shutdown window.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTP.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
