package config

import (
	"fmt"
	"os"
	"time"

	"iclr-explorer/internal/llm"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // "console" (development) or "json" (production)
	} `yaml:"log"`

	Database struct {
		Type string `yaml:"type"` // "sqlite" or "postgres"
		Path string `yaml:"path"` // SQLite path or PostgreSQL URL
	} `yaml:"database"`

	Years struct {
		Available []string `yaml:"available"`
		Default   string   `yaml:"default"`
	} `yaml:"years"`

	// Labeler used by the prompt endpoints
	Labeler llm.ProviderConfig `yaml:"labeler"`

	Conference string `yaml:"conference"` // "ICLR" or "ICML" rubric
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns a configuration with every default applied, used when no file is given.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "4000"
	}

	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"${FRONTEND_URL}", "http://localhost:3000", "https://localhost:3000"}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/iclr.db"
	}

	if len(c.Years.Available) == 0 {
		c.Years.Available = []string{"2024", "2025", "2026"}
	}

	if c.Years.Default == "" {
		c.Years.Default = c.Years.Available[0]
	}

	if c.Conference == "" {
		c.Conference = "ICLR"
	}

	c.Labeler.ApplyDefaults()

	// Expand environment variables in secrets
	c.Labeler.APIKey = os.ExpandEnv(c.Labeler.APIKey)
	c.Database.Path = os.ExpandEnv(c.Database.Path)

	origins := c.Server.AllowedOrigins[:0]
	for _, o := range c.Server.AllowedOrigins {
		if o = os.ExpandEnv(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.AllowedOrigins = origins
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}

	found := false
	for _, y := range c.Years.Available {
		if y == c.Years.Default {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default year %q is not in available years %v", c.Years.Default, c.Years.Available)
	}

	if c.Conference != "ICLR" && c.Conference != "ICML" {
		return fmt.Errorf("unsupported conference %q", c.Conference)
	}

	return c.Labeler.Validate()
}
