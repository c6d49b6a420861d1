// Package config loads service settings from YAML, .env and the environment
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPort is used when neither the config nor SERVER_PORT names one
const DefaultPort = "12212"

// Config is the full service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Render  RenderConfig  `yaml:"render"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins,omitempty"`
}

// StorageConfig locates the template database and tenant registry
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	TenantsPath  string `yaml:"tenants_path"`
}

// AuthConfig configures bearer token checks. An empty secret disables them.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RenderConfig configures the render queue
type RenderConfig struct {
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay string   `yaml:"retry_delay"`
	Fonts      []string `yaml:"fonts,omitempty"` // family=path pairs
}

// WatchConfig configures template change polling
type WatchConfig struct {
	Interval string `yaml:"interval"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr: "0.0.0.0:" + DefaultPort,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "templates.db"),
			TenantsPath:  filepath.Join(dataDir, "tenants.json"),
		},
		Render: RenderConfig{
			MaxRetries: 3,
			RetryDelay: "1s",
		},
		Watch: WatchConfig{
			Interval: "2s",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads the YAML file at path (a missing file means defaults), then
// loads .env from the working directory and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// variables already set in the environment win over .env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Addr = "0.0.0.0:" + port
	}
	if addr := os.Getenv("DYNODOCS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("DYNODOCS_DB_PATH"); path != "" {
		c.Storage.DatabasePath = path
	}
	if path := os.Getenv("DYNODOCS_TENANTS_PATH"); path != "" {
		c.Storage.TenantsPath = path
	}
	if secret := os.Getenv("DYNODOCS_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if origins := os.Getenv("DYNODOCS_ALLOW_ORIGINS"); origins != "" {
		c.Server.AllowOrigins = splitList(origins)
	}
	if level := os.Getenv("DYNODOCS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if retries := os.Getenv("DYNODOCS_RENDER_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n > 0 {
			c.Render.MaxRetries = n
		}
	}
}

// Validate reports settings the service cannot start with
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if c.Storage.TenantsPath == "" {
		return fmt.Errorf("storage.tenants_path is required")
	}
	if c.Render.MaxRetries < 1 {
		return fmt.Errorf("render.max_retries must be at least 1")
	}
	if _, err := time.ParseDuration(c.Watch.Interval); err != nil {
		return fmt.Errorf("invalid watch.interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Render.RetryDelay); err != nil {
		return fmt.Errorf("invalid render.retry_delay: %w", err)
	}
	return nil
}

// WatchInterval returns the polling interval as a duration
func (c *Config) WatchInterval() time.Duration {
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// RetryDelay returns the render retry delay as a duration
func (c *Config) RetryDelay() time.Duration {
	d, err := time.ParseDuration(c.Render.RetryDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// FontMap returns the configured font families keyed by lowercase name
func (c *Config) FontMap() map[string]string {
	fonts := make(map[string]string, len(c.Render.Fonts))
	for _, entry := range c.Render.Fonts {
		family, path, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		fonts[strings.ToLower(strings.TrimSpace(family))] = strings.TrimSpace(path)
	}
	return fonts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultDataDir picks where the database and registry live: next to the
// executable when that is writable, otherwise the user config directory.
func DefaultDataDir() string {
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		testFile := filepath.Join(exeDir, ".dynodocs-write-test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return filepath.Join(exeDir, "data")
		}
	}

	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "dynodocs")
		}
	} else if home := os.Getenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", "dynodocs")
	}
	if configDir != "" {
		return configDir
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "data")
	}
	return "data"
}
