package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "taskqueue.yml"

// Config models taskqueue.yml. Fields carry mapstructure tags so viper can
// overlay environment variables and flags on top of the file.
type Config struct {
	Store    StoreConfig     `yaml:"store" mapstructure:"store"`
	IDs      string          `yaml:"ids" mapstructure:"ids"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	LLM      LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Webhooks []WebhookConfig `yaml:"webhooks" mapstructure:"webhooks"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	File    string `yaml:"file" mapstructure:"file"`
	Journal bool   `yaml:"journal" mapstructure:"journal"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	BasePath  string `yaml:"base_path" mapstructure:"base_path"`
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

type LLMConfig struct {
	Provider string         `yaml:"provider" mapstructure:"provider"`
	Model    string         `yaml:"model" mapstructure:"model"`
	OpenAI   ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Google   ProviderConfig `yaml:"google" mapstructure:"google"`
	Deepseek ProviderConfig `yaml:"deepseek" mapstructure:"deepseek"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" mapstructure:"url"`
	Events         []string `yaml:"events" mapstructure:"events"`
	Secret         string   `yaml:"secret" mapstructure:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" mapstructure:"enabled"`
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	IDsSequential = "sequential"
	IDsUUID       = "uuid"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultTemplate), cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("config.store.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Store.Backend)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("config.store.path is required")
	}
	switch c.IDs {
	case IDsSequential, IDsUUID:
	default:
		return fmt.Errorf("config.ids must be %q or %q, got %q", IDsSequential, IDsUUID, c.IDs)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.LLM.Provider {
	case "", "openai", "google", "deepseek":
	default:
		return fmt.Errorf("config.llm.provider must be openai, google or deepseek, got %q", c.LLM.Provider)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has an empty event type", i)
			}
		}
	}
	if len(c.Webhooks) > 0 && c.Store.Backend != BackendSQLite {
		return fmt.Errorf("config.webhooks requires the sqlite store backend")
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// FromYAML parses raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config, with secrets masked when redact is set.
func (c *Config) YAML(redact bool) (string, error) {
	out := *c
	if redact {
		out.Server.JWTSecret = mask(out.Server.JWTSecret)
		out.LLM.OpenAI.APIKey = mask(out.LLM.OpenAI.APIKey)
		out.LLM.Google.APIKey = mask(out.LLM.Google.APIKey)
		out.LLM.Deepseek.APIKey = mask(out.LLM.Deepseek.APIKey)
		out.Webhooks = append([]WebhookConfig(nil), c.Webhooks...)
		for i := range out.Webhooks {
			out.Webhooks[i].Secret = mask(out.Webhooks[i].Secret)
		}
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

const defaultTemplate = `store:
  backend: json
  path: tasks.json

ids: sequential

log:
  level: info
  format: text
  file: ""
  journal: false

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""

llm:
  provider: openai
  model: ""
  openai:
    api_key: ""
    base_url: ""
    model: ""
  google:
    api_key: ""
    base_url: ""
    model: ""
  deepseek:
    api_key: ""
    base_url: ""
    model: ""

webhooks: []
`
