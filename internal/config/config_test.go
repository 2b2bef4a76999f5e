package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("DB_PATH", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRequests != 100 || cfg.RequestWindow != time.Minute {
		t.Errorf("rate limit = %d per %v", cfg.MaxRequests, cfg.RequestWindow)
	}
	if cfg.Debug {
		t.Error("DEBUG should default to false")
	}
	if cfg.Persistent() {
		t.Error("empty DB_PATH should keep state in memory")
	}
	if diff := cmp.Diff([]string{"*"}, cfg.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("DEBUG", "yes")
	t.Setenv("REQUEST_WINDOW", "90s")
	t.Setenv("IPQS_STRICTNESS", "1")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "g-key" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if !cfg.Debug {
		t.Error("DEBUG=yes should enable debug")
	}
	if cfg.RequestWindow != 90*time.Second {
		t.Errorf("RequestWindow = %v", cfg.RequestWindow)
	}
	if cfg.Lookups.IPQSStrictness != 1 {
		t.Errorf("IPQSStrictness = %d", cfg.Lookups.IPQSStrictness)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Port:          "8080",
			KnowledgePath: "/kb",
			MaxRequests:   100,
			RequestWindow: time.Minute,
			HistoryLimit:  20,
			LLM:           LLMConfig{Provider: "anthropic", APIKey: "k"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT"},
		{name: "zero requests", mutate: func(c *Config) { c.MaxRequests = 0 }, wantErr: "MAX_REQUESTS"},
		{name: "zero window", mutate: func(c *Config) { c.RequestWindow = 0 }, wantErr: "REQUEST_WINDOW"},
		{name: "missing key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "API key"},
		{name: "mock needs no key", mutate: func(c *Config) { c.LLM = LLMConfig{Provider: "mock"} }},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "other" }, wantErr: "LLM_PROVIDER"},
		{name: "strictness", mutate: func(c *Config) { c.Lookups.IPQSStrictness = 3 }, wantErr: "IPQS_STRICTNESS"},
		{name: "transcript dir", mutate: func(c *Config) { c.ConversationLog = ConversationLogConfig{Enabled: true, QueueSize: 1} }, wantErr: "CONVERSATION_LOG_DIR"},
		{name: "transcript disabled", mutate: func(c *Config) { c.ConversationLog = ConversationLogConfig{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvSeconds(t *testing.T) {
	t.Setenv("WINDOW_TEST", "15")
	if got := getEnvSeconds("WINDOW_TEST", time.Minute); got != 15*time.Second {
		t.Errorf("bare seconds = %v", got)
	}
	t.Setenv("WINDOW_TEST", "bogus")
	if got := getEnvSeconds("WINDOW_TEST", time.Minute); got != time.Minute {
		t.Errorf("fallback = %v", got)
	}
}
