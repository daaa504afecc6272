// Package store persists the postal-code universe, the universe build
// checkpoint, and the geocode result cache. Two drivers: sqlite for
// single-machine builds, postgres for shared ones.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

// Store is the persistence interface for the universe builder and the
// facility resolver's lookup cache.
type Store interface {
	// Universe
	UpsertCodes(ctx context.Context, records []model.CodeRecord, source string) error
	Codes(ctx context.Context) ([]model.CodeRecord, error)
	CountCodes(ctx context.Context) (int, error)

	// Build checkpoint: the last code whose lookup completed, so a
	// restarted build resumes instead of redoing hours of work.
	Cursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, code string) error
	ClearCursor(ctx context.Context) error

	// Build bookkeeping
	StartBuild(ctx context.Context) (string, error)
	FinishBuild(ctx context.Context, buildID string, scanned, accepted int) error

	// Geocode cache
	CachedLookup(ctx context.Context, key string) (*geocode.Result, bool, error)
	StoreLookup(ctx context.Context, key string, r *geocode.Result) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a store driver.
type Option func(*options)

type options struct {
	cacheTTLDays int
}

// WithCacheTTLDays bounds the age of geocode cache entries a lookup may
// serve. Entries older than the bound read as misses and get refreshed by
// the next StoreLookup. Zero disables the bound.
func WithCacheTTLDays(days int) Option {
	return func(o *options) { o.cacheTTLDays = days }
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// CacheKey derives the cache key for an address lookup: SHA-256 of the
// whitespace-normalized, lowercased input.
func CacheKey(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, "|"))
	joined = strings.Join(strings.Fields(joined), " ")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
