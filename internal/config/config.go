// Package config provides configuration management for docker-tags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration locations.
const (
	DefaultConfigDir  = ".config/docker-tags"
	DefaultConfigFile = "config.yaml"
)

// defaultDockerConfig is where docker stores registry credentials.
const defaultDockerConfig = "~/.docker/config.json"

// validate is the shared validator instance.
var validate = validator.New()

// Config represents the full docker-tags configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry" validate:"required"`
	Docker   DockerConfig   `mapstructure:"docker" validate:"required"`
	Output   OutputConfig   `mapstructure:"output"`
}

// RegistryConfig holds registry client settings.
type RegistryConfig struct {
	// Timeout bounds each HTTP request to the registry or token realm.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// DockerConfig holds docker credential file settings.
type DockerConfig struct {
	// Config is the path of the docker config file holding credentials.
	Config string `mapstructure:"config" validate:"required"`
}

// OutputConfig holds default values for output flags.
type OutputConfig struct {
	Reverse bool `mapstructure:"reverse"`
	Limit   int  `mapstructure:"limit" validate:"min=0"`
}

// Validate checks the configuration for errors using struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Loader provides configuration loading.
type Loader struct {
	v       *viper.Viper
	path    string
	homeDir string
}

// NewLoader creates a new configuration loader.
func NewLoader() (*Loader, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}

	configPath := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Environment variable binding
	v.SetEnvPrefix("DOCKER_TAGS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("registry.timeout", "DOCKER_TAGS_TIMEOUT")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("docker.config", "DOCKER_TAGS_DOCKER_CONFIG")

	l := &Loader{
		v:       v,
		path:    configPath,
		homeDir: home,
	}

	l.setDefaults()

	return l, nil
}

// setDefaults sets all default configuration values using Viper.
func (l *Loader) setDefaults() {
	l.v.SetDefault("registry.timeout", "30s")
	l.v.SetDefault("docker.config", defaultDockerConfig)
	l.v.SetDefault("output.reverse", false)
	l.v.SetDefault("output.limit", 0)
}

// Load reads the configuration file. A missing file is not an error; the
// defaults apply.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); err == nil {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Docker.Config = l.expandPath(cfg.Docker.Config)

	return &cfg, nil
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// expandPath expands a leading ~ to the user home directory.
func (l *Loader) expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(l.homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
