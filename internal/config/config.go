// Package config loads the application configuration: config.yaml with
// ${VAR} references expanded from the environment and an optional .env
// file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gnemet/viewsets/database/pool"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "config.yaml"

// Config is the application configuration.
type Config struct {
	Application struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Author  string `yaml:"author"`
		Lang    string `yaml:"lang"`
	} `yaml:"application"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database []pool.Config `yaml:"database"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the configuration at path (DefaultPath when empty). Variables
// from .env files are loaded first; a missing .env is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment references in data, decodes it and applies
// defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Application.Name == "" {
		c.Application.Name = "viewsets"
	}
	if c.Application.Lang == "" {
		c.Application.Lang = "en"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	defaults := 0
	for _, d := range c.Database {
		if d.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%d databases marked default", defaults)
	}
	return nil
}

// DefaultDatabase returns the database marked default, else the first one.
func (c *Config) DefaultDatabase() (pool.Config, bool) {
	for _, d := range c.Database {
		if d.Default {
			return d, true
		}
	}
	if len(c.Database) > 0 {
		return c.Database[0], true
	}
	return pool.Config{}, false
}

// Addr is the listen address of the server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}
