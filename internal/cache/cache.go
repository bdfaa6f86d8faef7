package cache

import (
	"context"
	"time"

	"quantumquery/internal/ingest"
)

// Cache keeps extracted contexts between requests so a document uploaded once
// can back several questions.
type Cache interface {
	// GetContexts returns the contexts stored under id.
	// Returns nil if not found or expired.
	GetContexts(ctx context.Context, id string) ([]ingest.Result, error)

	// SetContexts stores contexts under id with TTL.
	SetContexts(ctx context.Context, id string, contexts []ingest.Result, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}
