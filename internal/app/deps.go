package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"quantumquery/internal/cache"
	"quantumquery/internal/config"
	"quantumquery/internal/events"
	"quantumquery/internal/ingest"
	"quantumquery/internal/llm"
	"quantumquery/internal/logger"
	"quantumquery/internal/prompt"
	"quantumquery/internal/qa"
	"quantumquery/internal/summarizer"
)

// Deps bundles common runtime dependencies for the server and CLI.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Cache   cache.Cache
	Events  events.Publisher
	Service *qa.Service
}

// Close releases connections held by Deps.
func (d Deps) Close() {
	if d.Events != nil {
		if err := d.Events.Close(); err != nil {
			d.Log.Warn("failed to close event publisher", "err", err)
		}
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.Log.Warn("failed to close cache", "err", err)
		}
	}
}

// Build loads .env (when present), config, and shared components, logging to
// stdout.
func Build() (Deps, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return Deps{}, err
	}
	return BuildWith(cfg, logger.New(cfg.LogLevel))
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return config.Load(), nil
}

// BuildWith wires components from an already loaded config.
func BuildWith(cfg config.Config, log *slog.Logger) (Deps, error) {
	sum, err := summarizer.New(cfg.SummaryStrategy)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize summarizer: %w", err)
	}
	system, err := prompt.SystemInstruction(cfg.MathStyle)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize prompt: %w", err)
	}
	recognizers, err := buildRecognizers(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize OCR: %w", err)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	pub, err := buildEvents(cfg, log)
	if err != nil {
		_ = c.Close()
		return Deps{}, fmt.Errorf("failed to initialize events: %w", err)
	}

	clients := func(apiKey string) (llm.Client, error) {
		return llm.NewHTTPClient(apiKey, llm.HTTPConfig{
			URL:     cfg.CompletionURL,
			Model:   cfg.LLMModel,
			System:  system,
			Timeout: cfg.CompletionTimeout,
		})
	}
	in := ingest.New(log, sum, cfg.SummarySentences, nil)
	svc := qa.NewService(log, in, c, pub, clients, recognizers, qa.Options{
		DefaultAPIKey: cfg.APIKey,
		MergeMath:     cfg.MathStyle == prompt.StyleUnifiedMath,
		ContextTTL:    cfg.ContextTTL,
	})
	log.Info("using completion service", "url", cfg.CompletionURL, "model", cfg.LLMModel, "summary", cfg.SummaryStrategy)

	return Deps{
		Config:  cfg,
		Log:     log,
		Cache:   c,
		Events:  pub,
		Service: svc,
	}, nil
}

func buildRecognizers(cfg config.Config, log *slog.Logger) (qa.RecognizerFactory, error) {
	switch cfg.OCRProvider {
	case "vision":
		log.Info("using vision model OCR", "model", cfg.VisionModel)
		return func(apiKey string) ingest.Recognizer {
			rec, err := llm.NewVisionRecognizer(apiKey, cfg.VisionBaseURL, cfg.VisionModel)
			if err != nil {
				log.Warn("vision recognizer unavailable", "err", err)
				return nil
			}
			return rec
		}, nil
	case "none":
		log.Info("image OCR disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid OCR_PROVIDER: %s (valid options: vision, none)", cfg.OCRProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "memory":
		log.Info("using in-memory context cache")
		return cache.NewMemoryCache(0), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CACHE_PROVIDER=redis")
		}
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("using Redis context cache", "addr", cfg.RedisAddr)
		return rc, nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: memory, redis)", cfg.CacheProvider)
	}
}

func buildEvents(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsProvider {
	case "none":
		return events.NoopPublisher{}, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when EVENTS_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("publishing interactions to NATS", "subject", events.Subject)
		return events.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid EVENTS_PROVIDER: %s (valid options: none, nats)", cfg.EventsProvider)
	}
}
