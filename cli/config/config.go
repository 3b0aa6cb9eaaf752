// Package config provides configuration management for the cartfold CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Serializer formats.
const (
	FormatJSON     = "json"
	FormatMsgpack  = "msgpack"
	FormatProtobuf = "protobuf"
)

// Config represents the cartfold CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Project configuration
	Project ProjectConfig `yaml:"project"`

	// Store selects and configures the event log backend
	Store StoreConfig `yaml:"store"`

	// Serializer configures the event payload encoding
	Serializer SerializerConfig `yaml:"serializer"`

	// Observability toggles metrics and tracing
	Observability ObservabilityConfig `yaml:"observability"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	// Name of the project, also used as the service name in metrics and spans
	Name string `yaml:"name" env:"CARTFOLD_PROJECT"`
}

// StoreConfig contains event log settings
type StoreConfig struct {
	// Driver is one of memory, postgres, sqlite or redis
	Driver string `yaml:"driver" env:"CARTFOLD_DRIVER"`

	// URL is the connection string for postgres, or the address for redis.
	// ${VAR} references are expanded from the environment.
	URL string `yaml:"url,omitempty" env:"CARTFOLD_URL"`

	// Schema is the postgres schema
	Schema string `yaml:"schema,omitempty" env:"CARTFOLD_SCHEMA"`

	// Path is the sqlite database file
	Path string `yaml:"path,omitempty" env:"CARTFOLD_PATH"`

	// Prefix is the redis key prefix
	Prefix string `yaml:"prefix,omitempty" env:"CARTFOLD_PREFIX"`

	// PageSize is how many records lazy reads fetch per round trip
	PageSize int `yaml:"page_size,omitempty" env:"CARTFOLD_PAGE_SIZE"`
}

// SerializerConfig contains payload encoding settings
type SerializerConfig struct {
	// Format is one of json, msgpack or protobuf
	Format string `yaml:"format" env:"CARTFOLD_SERIALIZER"`
}

// ObservabilityConfig contains metrics and tracing settings
type ObservabilityConfig struct {
	Metrics bool `yaml:"metrics" env:"CARTFOLD_METRICS"`
	Tracing bool `yaml:"tracing" env:"CARTFOLD_TRACING"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "my-carts",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "cartfold.db",
			Schema: "fold",
			Prefix: "fold",
		},
		Serializer: SerializerConfig{
			Format: FormatJSON,
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "cartfold.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyEnv overrides configuration values from CARTFOLD_* environment variables.
// Unset variables leave the loaded values in place.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// StoreURL returns the store URL with environment references expanded.
func (c *Config) StoreURL() string {
	return os.ExpandEnv(c.Store.URL)
}

// SerializerFormat returns the configured format, defaulting to json.
func (c *Config) SerializerFormat() string {
	if c.Serializer.Format == "" {
		return FormatJSON
	}
	return c.Serializer.Format
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}

	switch c.Store.Driver {
	case "":
		errors = append(errors, "store.driver is required")
	case DriverMemory:
	case DriverPostgres, DriverRedis:
		if c.StoreURL() == "" {
			errors = append(errors, fmt.Sprintf("store.url is required for %s driver", c.Store.Driver))
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			errors = append(errors, "store.path is required for sqlite driver")
		}
	default:
		errors = append(errors, "store.driver must be one of 'memory', 'postgres', 'sqlite' or 'redis'")
	}

	if c.Store.PageSize < 0 {
		errors = append(errors, "store.page_size must not be negative")
	}

	switch c.SerializerFormat() {
	case FormatJSON, FormatMsgpack, FormatProtobuf:
	default:
		errors = append(errors, "serializer.format must be one of 'json', 'msgpack' or 'protobuf'")
	}

	return errors
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	url := cfg.Store.URL
	if url == "" {
		url = "${CARTFOLD_STORE_URL}"
	}

	return `# cartfold configuration file

version: "1"

project:
  # Name of your project, used as the service name in metrics and traces
  name: "` + cfg.Project.Name + `"

# Event log backend
store:
  # Driver: memory, postgres, sqlite or redis
  driver: "` + cfg.Store.Driver + `"

  # Connection URL (postgres) or address (redis)
  url: "` + url + `"

  # Database schema (postgres only)
  schema: "` + cfg.Store.Schema + `"

  # Database file (sqlite only)
  path: "` + cfg.Store.Path + `"

  # Key prefix (redis only)
  prefix: "` + cfg.Store.Prefix + `"

# Event payload encoding: json, msgpack or protobuf
serializer:
  format: "` + cfg.SerializerFormat() + `"

observability:
  metrics: ` + fmt.Sprint(cfg.Observability.Metrics) + `
  tracing: ` + fmt.Sprint(cfg.Observability.Tracing) + `
`
}
