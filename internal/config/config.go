// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Backend names for the inference API.
const (
	BackendOllama = "ollama"
	BackendGroq   = "groq"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	PublicDir       string
	Agent           string
	AgentDir        string
	Backend         string
	OllamaURL       string
	ModelName       string
	GroqAPIKey      string
	GroqURL         string
	GroqModel       string
	CoalesceQuiet   time.Duration
	SessionTTL      time.Duration
	UpstreamTimeout time.Duration
	AllowedOrigins  []string
	LogDir          string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "3000"),
		PublicDir:       getEnv("PUBLIC_DIR", "./public"),
		Agent:           getEnv("AGENT", "el-vecinito"),
		AgentDir:        getEnv("AGENT_DIR", "."),
		Backend:         strings.ToLower(getEnv("LLM_BACKEND", BackendOllama)),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		ModelName:       getEnv("MODEL_NAME", "vecinito-model"),
		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GroqURL:         getEnv("GROQ_URL", "https://api.groq.com"),
		GroqModel:       getEnv("GROQ_MODEL", "llama-4-scout"),
		CoalesceQuiet:   getEnvDuration("COALESCE_QUIET", 8*time.Second),
		SessionTTL:      getEnvDuration("SESSION_TTL", 0),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		AllowedOrigins:  splitOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		LogDir:          getEnv("LOG_DIR", "./logs"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// A missing GROQ_API_KEY is deliberately not a startup error: the credential
// is only required at call time, and the Ollama backend needs none.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.PublicDir == "" {
		return fmt.Errorf("PUBLIC_DIR cannot be empty")
	}
	if c.Agent == "" {
		return fmt.Errorf("AGENT cannot be empty")
	}
	if c.Backend != BackendOllama && c.Backend != BackendGroq {
		return fmt.Errorf("LLM_BACKEND must be %q or %q, got %q", BackendOllama, BackendGroq, c.Backend)
	}
	if c.CoalesceQuiet < 0 {
		return fmt.Errorf("COALESCE_QUIET cannot be negative")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be > 0")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

// ProductDir returns the filesystem root of the product image tree.
func (c *Config) ProductDir() string {
	return c.PublicDir + "/imagenes/productos"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
