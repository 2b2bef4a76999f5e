// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port  string
	Debug bool

	// DBPath selects SQLite persistence. Empty keeps state in memory only.
	DBPath string

	LogLevel  string
	LogFormat string

	AllowedOrigins []string

	KnowledgePath string
	RulesPath     string
	// DatasetPath enables the statistical classifier when set.
	DatasetPath     string
	RetrainInterval time.Duration

	MaxRequests   int
	RequestWindow time.Duration
	HistoryLimit  int

	// GRPCHealthAddr exposes the gRPC health service when set.
	GRPCHealthAddr string

	LLM             LLMConfig
	Lookups         LookupConfig
	ConversationLog ConversationLogConfig
}

// ConversationLogConfig controls NDJSON chat transcripts.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LookupConfig holds the credentials of the threat-intelligence services.
type LookupConfig struct {
	RapidAPIKey    string
	IPQSKey        string
	IPQSStrictness int
	Timeout        time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", "anthropic"))
	apiKey := getEnv("ANTHROPIC_API_KEY", "")
	if provider == "gemini" {
		apiKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", ""))
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Debug:           getEnvBool("DEBUG", false),
		DBPath:          getEnv("DB_PATH", "./data/cyberdesk.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		KnowledgePath:   getEnv("KNOWLEDGE_BASE_PATH", "/app/external_knowledge"),
		RulesPath:       getEnv("RULES_PATH", ""),
		DatasetPath:     getEnv("DATASET_PATH", ""),
		RetrainInterval: getEnvDuration("RETRAIN_INTERVAL", time.Hour),
		MaxRequests:     getEnvInt("MAX_REQUESTS", 100),
		RequestWindow:   getEnvSeconds("REQUEST_WINDOW", 60*time.Second),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 20),
		GRPCHealthAddr:  getEnv("GRPC_HEALTH_ADDR", ""),
		LLM: LLMConfig{
			Provider: provider,
			Model:    getEnv("LLM_MODEL", ""),
			APIKey:   apiKey,
			BaseURL:  getEnv("LLM_BASE_URL", ""),
		},
		Lookups: LookupConfig{
			RapidAPIKey:    getEnv("RAPIDAPI_KEY", ""),
			IPQSKey:        getEnv("IPQS_KEY", ""),
			IPQSStrictness: getEnvInt("IPQS_STRICTNESS", 0),
			Timeout:        getEnvDuration("LOOKUP_TIMEOUT", 20*time.Second),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.KnowledgePath == "" {
		return errors.New("KNOWLEDGE_BASE_PATH cannot be empty")
	}
	if c.MaxRequests <= 0 {
		return errors.New("MAX_REQUESTS must be > 0")
	}
	if c.RequestWindow <= 0 {
		return errors.New("REQUEST_WINDOW must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be > 0")
	}
	if c.Lookups.IPQSStrictness < 0 || c.Lookups.IPQSStrictness > 2 {
		return errors.New("IPQS_STRICTNESS must be between 0 and 2")
	}
	if c.ConversationLog.Enabled {
		if c.ConversationLog.Dir == "" {
			return errors.New("CONVERSATION_LOG_DIR cannot be empty")
		}
		if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
			return errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
		}
		if c.ConversationLog.QueueSize <= 0 {
			return errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
		}
	}
	switch c.LLM.Provider {
	case "anthropic", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("API key for LLM provider %q cannot be empty", c.LLM.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	return nil
}

// Persistent reports whether state is written to SQLite.
func (c *Config) Persistent() bool {
	return c.DBPath != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvSeconds accepts a bare number of seconds or a Go duration string.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
