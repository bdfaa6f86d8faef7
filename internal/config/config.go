package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the server and CLI.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Completion service
	APIKey            string        `env:"GROQ_API_KEY"`
	CompletionURL     string        `env:"COMPLETION_URL" envDefault:"https://api.groq.com/openai/v1/chat/completions"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"meta-llama/llama-4-scout-17b-16e-instruct"`
	MathStyle         string        `env:"MATH_STYLE" envDefault:"plain"` // "plain" or "unified-math"
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`

	// OCR
	OCRProvider   string `env:"OCR_PROVIDER" envDefault:"vision"` // "vision" or "none"
	VisionBaseURL string `env:"VISION_BASE_URL" envDefault:"https://api.groq.com/openai/v1/"`
	VisionModel   string `env:"VISION_MODEL" envDefault:"meta-llama/llama-4-scout-17b-16e-instruct"`

	// Summarizer
	SummaryStrategy  string `env:"SUMMARY_STRATEGY" envDefault:"textrank"` // "textrank" or "truncate"
	SummarySentences int    `env:"SUMMARY_SENTENCES" envDefault:"5"`

	// Context cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"memory"` // "memory" or "redis"
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	ContextTTL    time.Duration `env:"CONTEXT_TTL" envDefault:"30m"`

	// Interaction events
	EventsProvider string `env:"EVENTS_PROVIDER" envDefault:"none"` // "none" or "nats"
	QueueURL       string `env:"QUEUE_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
