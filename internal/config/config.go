// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	Password        string // empty disables the login gate
	Timezone        string // IANA name; empty means the host's local zone
	SessionTTL      time.Duration
	AI              AIConfig
	ConversationLog ConversationLogConfig
}

// AIConfig selects and tunes the language-model backend.
type AIConfig struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	ModerationModel   string
	AgentAddr         string
	ChatTimeout       time.Duration
	SummaryTimeout    time.Duration
	KeywordTimeout    time.Duration
	ModerationTimeout time.Duration
	TokenCeiling      int64
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	defaults := agent.DefaultConfig()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/diary.db"),
		Password:    getEnv("APP_PASSWORD", ""),
		Timezone:    getEnv("TIMEZONE", ""),
		SessionTTL:  getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		AI: AIConfig{
			Provider:          strings.ToLower(getEnv("AI_PROVIDER", agent.ProviderOpenAI)),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", ""),
			Model:             getEnv("AI_MODEL", defaults.Model),
			ModerationModel:   getEnv("AI_MODERATION_MODEL", defaults.ModerationModel),
			AgentAddr:         getEnv("AI_AGENT_ADDR", defaults.AgentAddr),
			ChatTimeout:       getEnvDuration("AI_CHAT_TIMEOUT", 30*time.Second),
			SummaryTimeout:    getEnvDuration("AI_SUMMARY_TIMEOUT", 30*time.Second),
			KeywordTimeout:    getEnvDuration("AI_KEYWORD_TIMEOUT", 20*time.Second),
			ModerationTimeout: getEnvDuration("AI_MODERATION_TIMEOUT", 20*time.Second),
			TokenCeiling:      int64(getEnvInt("AI_TOKEN_CEILING", 100_000)),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
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
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.Timezone, err)
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// ValidateAI checks the model backend settings. Offline commands such as
// export skip it.
func (c *Config) ValidateAI() error {
	switch c.AI.Provider {
	case agent.ProviderOpenAI:
		if c.AI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case agent.ProviderGRPC:
		if c.AI.AgentAddr == "" {
			return fmt.Errorf("AI_AGENT_ADDR is required when AI_PROVIDER=grpc")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be %q or %q", agent.ProviderOpenAI, agent.ProviderGRPC)
	}
	if c.AI.TokenCeiling <= 0 {
		return fmt.Errorf("AI_TOKEN_CEILING must be > 0")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Clock returns a now function in the configured zone.
func (c *Config) Clock() func() time.Time {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return func() time.Time { return time.Now().In(loc) }
}

// Agent returns the settings for agent.NewProcessor.
func (c *Config) Agent() agent.Config {
	return agent.Config{
		Provider:        c.AI.Provider,
		Model:           c.AI.Model,
		ModerationModel: c.AI.ModerationModel,
		APIKey:          c.AI.APIKey,
		BaseURL:         c.AI.BaseURL,
		AgentAddr:       c.AI.AgentAddr,
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins lists the CORS origins.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
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
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
