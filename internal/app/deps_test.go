package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumquery/internal/cache"
	"quantumquery/internal/config"
	"quantumquery/internal/events"
)

func testConfig() config.Config {
	return config.Config{
		CompletionURL:     "http://localhost/v1/chat/completions",
		LLMModel:          "test-model",
		MathStyle:         "plain",
		CompletionTimeout: time.Second,
		OCRProvider:       "none",
		SummaryStrategy:   "truncate",
		SummarySentences:  5,
		CacheProvider:     "memory",
		ContextTTL:        time.Minute,
		EventsProvider:    "none",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWithDefaults(t *testing.T) {
	deps, err := BuildWith(testConfig(), discardLogger())
	require.NoError(t, err)
	defer deps.Close()

	assert.IsType(t, &cache.MemoryCache{}, deps.Cache)
	assert.IsType(t, events.NoopPublisher{}, deps.Events)
	require.NotNil(t, deps.Service)
	assert.False(t, deps.Service.HasDefaultKey())
}

func TestBuildWithConfiguredKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "gsk-test"
	cfg.OCRProvider = "vision"

	deps, err := BuildWith(cfg, discardLogger())
	require.NoError(t, err)
	defer deps.Close()
	assert.True(t, deps.Service.HasDefaultKey())
}

func TestBuildWithInvalidProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"summary strategy", func(c *config.Config) { c.SummaryStrategy = "lexrank" }, "summarizer"},
		{"math style", func(c *config.Config) { c.MathStyle = "fancy" }, "prompt"},
		{"ocr provider", func(c *config.Config) { c.OCRProvider = "tesseract" }, "OCR_PROVIDER"},
		{"cache provider", func(c *config.Config) { c.CacheProvider = "memcached" }, "CACHE_PROVIDER"},
		{"events provider", func(c *config.Config) { c.EventsProvider = "kafka" }, "EVENTS_PROVIDER"},
		{"nats without url", func(c *config.Config) { c.EventsProvider = "nats" }, "QUEUE_URL"},
		{"redis without addr", func(c *config.Config) { c.CacheProvider = "redis" }, "REDIS_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := BuildWith(cfg, discardLogger())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
