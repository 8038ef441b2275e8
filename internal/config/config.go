// Package config handles loading and persisting user configuration
// for doc2html. Configuration is stored in ~/.doc2html/config.yaml.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	dirName  = ".doc2html"
	fileName = "config.yaml"

	DefaultModel      = "deepseek-ai/DeepSeek-V3"
	DefaultEndpoint   = "https://api.siliconflow.cn/v1/chat/completions"
	DefaultServerAddr = ":8080"

	envKeyAPIKey   = "D2H_API_KEY"
	envKeyModel    = "D2H_MODEL"
	envKeyEndpoint = "D2H_ENDPOINT"
	envKeyTemplate = "D2H_TEMPLATE"
)

// Config holds the user's configuration.
type Config struct {
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint"`
	Template   string `yaml:"template,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`
	Strict     bool   `yaml:"strict,omitempty"`
	ServerAddr string `yaml:"server_addr,omitempty"`
}

// Dir returns the configuration directory path.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

func configPath() string {
	return filepath.Join(Dir(), fileName)
}

func defaults() *Config {
	return &Config{
		Model:      DefaultModel,
		Endpoint:   DefaultEndpoint,
		OutputDir:  filepath.Join(Dir(), "uploads"),
		ServerAddr: DefaultServerAddr,
	}
}

// Load reads the configuration from disk, a local .env file and environment
// variables, in that order of increasing precedence. A missing or unreadable
// config file is not an error.
func Load() (*Config, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	cfg := readFile()

	if key := os.Getenv(envKeyAPIKey); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv(envKeyModel); model != "" {
		cfg.Model = model
	}
	if endpoint := os.Getenv(envKeyEndpoint); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if tmpl := os.Getenv(envKeyTemplate); tmpl != "" {
		cfg.Template = tmpl
	}

	d := defaults()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = d.Endpoint
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = d.OutputDir
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = d.ServerAddr
	}

	return cfg, nil
}

func readFile() *Config {
	cfg := defaults()
	data, err := os.ReadFile(configPath())
	if err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}
	return cfg
}

// save persists the config to disk.
func save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath(), data, 0o600)
}

// update applies fn to the stored config (ignoring environment overrides,
// which must never be written back) and persists the result.
func update(fn func(*Config)) error {
	cfg := readFile()
	fn(cfg)
	return save(cfg)
}

// SetAPIKey saves the API key to the config file.
func SetAPIKey(key string) error {
	return update(func(c *Config) { c.APIKey = key })
}

// SetModel saves the model preference to the config file.
func SetModel(model string) error {
	return update(func(c *Config) { c.Model = model })
}

// SetEndpoint saves the chat completions endpoint to the config file.
func SetEndpoint(endpoint string) error {
	return update(func(c *Config) { c.Endpoint = endpoint })
}

// SetTemplate saves the prompt template location (file path or URL).
func SetTemplate(location string) error {
	return update(func(c *Config) { c.Template = location })
}

// MaskedKey returns the API key with everything but the edges hidden.
func (c *Config) MaskedKey() string {
	if c.APIKey == "" {
		return "(not set)"
	}
	if len(c.APIKey) <= 8 {
		return "****"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}
