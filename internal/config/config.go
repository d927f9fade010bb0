package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ProviderConfig selects the LLM endpoint and wire format.
type ProviderConfig struct {
	Name       string            `mapstructure:"name" yaml:"name"`
	BaseURL    string            `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string            `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model      string            `mapstructure:"model" yaml:"model"`
	WireFormat string            `mapstructure:"wire_format" yaml:"wire_format"` // chat or responses
	Headers    map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	LiveSearch bool              `mapstructure:"live_search" yaml:"live_search"`
	Timeout    time.Duration     `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig configures the tool loop.
type AgentConfig struct {
	MaxToolRounds int    `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
	SystemPrompt  string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
}

// ToolsConfig configures local tools and confirmation.
type ToolsConfig struct {
	ShellAllow   []string      `mapstructure:"shell_allow" yaml:"shell_allow,omitempty"`
	ShellTimeout time.Duration `mapstructure:"shell_timeout" yaml:"shell_timeout"`
	Shell        string        `mapstructure:"shell" yaml:"shell,omitempty"`
	// Yolo approves every tool call without asking.
	Yolo bool `mapstructure:"yolo" yaml:"yolo"`
}

// RetryConfig configures stream-open retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// SessionConfig configures conversation persistence.
type SessionConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"` // sqlite file; empty uses the data dir
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// DefaultSystemPrompt is used when agent.system_prompt is empty.
const DefaultSystemPrompt = `You are a coding assistant running in the user's terminal.
Use the available tools to inspect and change files and to run commands.
Prefer small, verifiable steps and explain what you changed.`

// Load reads the config file from the config dir or the current directory.
// A missing file is not an error.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	v := newViper()
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads one explicit config file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.model", "gpt-4.1")
	v.SetDefault("provider.wire_format", "chat")
	v.SetDefault("provider.timeout", 10*time.Minute)
	v.SetDefault("agent.max_tool_rounds", 20)
	v.SetDefault("tools.shell_timeout", 2*time.Minute)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("session.enabled", true)
	v.SetDefault("log.level", "warn")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	resolveProviderCredentials(&cfg.Provider)
	if cfg.Agent.SystemPrompt == "" {
		cfg.Agent.SystemPrompt = DefaultSystemPrompt
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Provider.WireFormat {
	case "chat", "responses":
	default:
		return fmt.Errorf("provider.wire_format must be chat or responses, got %q", c.Provider.WireFormat)
	}
	if c.Agent.MaxToolRounds <= 0 {
		return fmt.Errorf("agent.max_tool_rounds must be positive, got %d", c.Agent.MaxToolRounds)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// ApplyOverrides applies model and wire format overrides from flags.
// Empty values leave the config unchanged.
func (c *Config) ApplyOverrides(model, wireFormat string) {
	if model != "" {
		c.Provider.Model = model
	}
	if wireFormat != "" {
		c.Provider.WireFormat = wireFormat
	}
}

// Dump renders the effective config as YAML with the API key redacted.
func (c *Config) Dump() (string, error) {
	redacted := *c
	if redacted.Provider.APIKey != "" {
		redacted.Provider.APIKey = redact(redacted.Provider.APIKey)
	}
	headers := make(map[string]string, len(c.Provider.Headers))
	for k, val := range c.Provider.Headers {
		if strings.EqualFold(k, "authorization") || strings.Contains(strings.ToLower(k), "key") {
			val = redact(val)
		}
		headers[k] = val
	}
	redacted.Provider.Headers = headers

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

func redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// resolveProviderCredentials expands $VAR references and falls back to the
// environment for the API key.
func resolveProviderCredentials(cfg *ProviderConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("TERM_AGENT_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
	for k, v := range cfg.Headers {
		cfg.Headers[k] = expandEnv(v)
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for term-agent.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "term-agent"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "term-agent"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for term-agent.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "term-agent")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "term-agent-data") // fallback
	}
	return filepath.Join(homeDir, ".local", "share", "term-agent")
}

// SessionDBPath returns the sqlite path for session history.
func (c *Config) SessionDBPath() string {
	if c.Session.Path != "" {
		return c.Session.Path
	}
	return filepath.Join(GetDataDir(), "sessions.db")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WriteDefault writes a starter config file. It refuses to overwrite an
// existing one.
func WriteDefault() (string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if Exists() {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `provider:
  name: openai
  base_url: https://api.openai.com/v1
  model: gpt-4.1
  # chat (Chat Completions) or responses (Responses API)
  wire_format: chat
  # api_key: $OPENAI_API_KEY
  live_search: false

agent:
  max_tool_rounds: 20

tools:
  # Shell commands that run without confirmation (glob patterns)
  shell_allow:
    - "git status"
    - "git diff*"
    - "go test *"
  shell_timeout: 2m

session:
  enabled: true

log:
  level: warn
`
	return path, os.WriteFile(path, []byte(content), 0600)
}
