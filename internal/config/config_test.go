package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	t.Setenv("TERM_AGENT_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := LoadFile(writeConfig(t, "provider:\n  name: openai\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Provider.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.WireFormat != "chat" || cfg.Provider.Model != "gpt-4.1" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.Timeout != 10*time.Minute {
		t.Errorf("timeout = %v", cfg.Provider.Timeout)
	}
	if cfg.Agent.MaxToolRounds != 20 || cfg.Agent.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Tools.ShellTimeout != 2*time.Minute {
		t.Errorf("shell_timeout = %v", cfg.Tools.ShellTimeout)
	}
	if !cfg.Session.Enabled || cfg.Log.Level != "warn" {
		t.Errorf("session = %+v, log = %+v", cfg.Session, cfg.Log)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("api key should fall back to OPENAI_API_KEY, got %q", cfg.Provider.APIKey)
	}
}

func TestLoadFile_Values(t *testing.T) {
	t.Setenv("MY_KEY", "sk-from-var")
	cfg, err := LoadFile(writeConfig(t, `
provider:
  base_url: http://localhost:8080/v1
  api_key: ${MY_KEY}
  wire_format: responses
  timeout: 30s
  headers:
    X-Team: core
agent:
  max_tool_rounds: 3
tools:
  shell_allow: ["git status", "go test *"]
  yolo: true
retry:
  max_attempts: 5
  base_backoff: 250ms
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-var" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.WireFormat != "responses" || cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.Headers["x-team"] != "core" && cfg.Provider.Headers["X-Team"] != "core" {
		t.Errorf("headers = %v", cfg.Provider.Headers)
	}
	if cfg.Agent.MaxToolRounds != 3 || !cfg.Tools.Yolo || len(cfg.Tools.ShellAllow) != 2 {
		t.Errorf("agent = %+v, tools = %+v", cfg.Agent, cfg.Tools)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseBackoff != 250*time.Millisecond || cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "wire format", content: "provider:\n  wire_format: grpc\n", wantErr: "wire_format"},
		{name: "rounds", content: "agent:\n  max_tool_rounds: 0\n", wantErr: "max_tool_rounds"},
		{name: "yaml", content: "provider: [\n", wantErr: "failed to read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{Provider: ProviderConfig{Model: "gpt-4.1", WireFormat: "chat"}}

	cfg.ApplyOverrides("gpt-5", "")
	if cfg.Provider.Model != "gpt-5" || cfg.Provider.WireFormat != "chat" {
		t.Fatalf("provider = %+v", cfg.Provider)
	}

	cfg.ApplyOverrides("", "responses")
	if cfg.Provider.Model != "gpt-5" || cfg.Provider.WireFormat != "responses" {
		t.Fatalf("provider = %+v", cfg.Provider)
	}
}

func TestDump_RedactsSecrets(t *testing.T) {
	cfg := &Config{Provider: ProviderConfig{
		Name:    "openai",
		APIKey:  "sk-1234567890abcdef",
		Headers: map[string]string{"Authorization": "Bearer secret-token", "X-Team": "core"},
	}}
	out, err := cfg.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "1234567890abcdef") || strings.Contains(out, "secret-token") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "api_key: sk-1****") || !strings.Contains(out, "X-Team: core") {
		t.Errorf("unexpected dump:\n%s", out)
	}
	if cfg.Provider.APIKey != "sk-1234567890abcdef" {
		t.Error("Dump must not modify the config")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TA_TEST_VAR", "value")
	tests := map[string]string{
		"${TA_TEST_VAR}": "value",
		"$TA_TEST_VAR":   "value",
		"plain":          "plain",
		"":               "",
	}
	for in, want := range tests {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	cfg := &Config{}
	if got := cfg.SessionDBPath(); got != filepath.Join("/tmp/xdg", "term-agent", "sessions.db") {
		t.Errorf("default path = %s", got)
	}
	cfg.Session.Path = "/var/db/s.db"
	if got := cfg.SessionDBPath(); got != "/var/db/s.db" {
		t.Errorf("explicit path = %s", got)
	}
}
