package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// OpenAI-compatible completion service
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	Temperature   float32
	MaxTokens     int
	ChatTimeout   time.Duration
	// Database (optional; intake records are not persisted without it)
	DatabaseURL   string
	MigrationsDir string
	// Conversation
	PromptFile string
	MaxTurns   int
}

func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Config{
		Port:          getEnvDefault("PORT", "8080"),
		AllowedOrigin: getEnvDefault("ALLOWED_ORIGIN", "*"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:         getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature:   getEnvFloatDefault("TEMPERATURE", 0.8),
		MaxTokens:     getEnvIntDefault("MAX_TOKENS", 300),
		ChatTimeout:   time.Duration(getEnvIntDefault("CHAT_TIMEOUT_SECONDS", 20)) * time.Second,
		DatabaseURL:   os.Getenv("DB_URL"),
		MigrationsDir: getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		PromptFile:    getEnvDefault("PROMPT_FILE", "./prompts/artorias.yaml"),
		MaxTurns:      getEnvIntDefault("MAX_TURNS", 40),
	}
	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatDefault(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			return float32(f)
		}
	}
	return def
}
