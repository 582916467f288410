// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names for the collaborator backend.
const (
	ProviderOpenAI   = "openai"
	ProviderAzure    = "azure"
	ProviderTogether = "together"
	ProviderGemini   = "gemini"
	ProviderTest     = "test"
)

const togetherBaseURL = "https://api.together.xyz/v1"

// Config holds all application configuration.
type Config struct {
	Provider      string
	Model         string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string

	SandboxImage   string
	Persistent     bool
	SessionTimeout time.Duration
	ExecTimeout    time.Duration

	MaxRetries int
	Workers    int
	PostSteps  bool
	Format     string

	DBPath    string
	OutputDir string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:       getEnv("CAUSALAB_PROVIDER", ProviderOpenAI),
		Model:          getEnv("CAUSALAB_MODEL", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		SandboxImage:   getEnv("CAUSALAB_SANDBOX_IMAGE", ""),
		Persistent:     getEnvBool("CAUSALAB_PERSISTENT", false),
		SessionTimeout: getEnvDuration("CAUSALAB_SESSION_TIMEOUT", time.Hour),
		ExecTimeout:    getEnvDuration("CAUSALAB_EXEC_TIMEOUT", 5*time.Minute),
		MaxRetries:     getEnvInt("CAUSALAB_MAX_RETRIES", 3),
		Workers:        getEnvInt("CAUSALAB_WORKERS", 4),
		PostSteps:      getEnvBool("CAUSALAB_POST_STEPS", false),
		Format:         getEnv("CAUSALAB_FORMAT", "causal"),
		DBPath:         getEnv("CAUSALAB_DB_PATH", "./data/causalab.db"),
		OutputDir:      getEnv("CAUSALAB_OUTPUT_DIR", "./results"),
	}

	if cfg.Provider == ProviderTogether && cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = togetherBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAzure, ProviderTogether:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
		if c.Model == "" {
			return fmt.Errorf("CAUSALAB_MODEL is required for provider %q", c.Provider)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Provider)
		}
		if c.Model == "" {
			return fmt.Errorf("CAUSALAB_MODEL is required for provider %q", c.Provider)
		}
	case ProviderTest:
		// No credentials needed.
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.Format {
	case "causal", "cot":
	default:
		return fmt.Errorf("unknown query format %q", c.Format)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("CAUSALAB_MAX_RETRIES must be >= 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("CAUSALAB_WORKERS must be >= 1")
	}
	if c.DBPath == "" {
		return fmt.Errorf("CAUSALAB_DB_PATH cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("CAUSALAB_OUTPUT_DIR cannot be empty")
	}
	return nil
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
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are seconds, matching how operators usually set timeouts.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
