// Package resolver turns facility address lists into coordinates the radius
// pipeline can query, geocoding at exact confidence only.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/internal/resilience"
	"github.com/sells-group/radius-cli/internal/store"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

// Cache is the lookup-cache slice of store.Store the resolver needs.
type Cache interface {
	CachedLookup(ctx context.Context, key string) (*geocode.Result, bool, error)
	StoreLookup(ctx context.Context, key string, r *geocode.Result) error
}

// Resolver geocodes facilities in batches. One failed address is reported
// and skipped; an unreachable geocoder aborts the batch.
type Resolver struct {
	client      geocode.Client
	cache       Cache
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables the persistent geocode cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithConcurrency sets how many addresses are geocoded in parallel.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRetryConfig overrides the per-address retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// WithBreaker overrides the geocoder circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) { r.breaker = cb }
}

// New creates a Resolver backed by the given geocoding client.
func New(client geocode.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:      client,
		retry:       resilience.DefaultRetryConfig(),
		concurrency: 4,
	}
	r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("geocoder circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome is the result of one batch resolution. Resolved facilities keep
// their input order; every input facility lands in exactly one of the two
// slices.
type Outcome struct {
	Facilities []model.Facility
	Unresolved []model.Unresolved
}

// Resolve geocodes every facility that does not already carry a usable
// coordinate. Addresses that miss, or match below exact confidence, are
// reported as Unresolved without failing the batch.
func (r *Resolver) Resolve(ctx context.Context, facilities []model.Facility) (*Outcome, error) {
	type slot struct {
		facility   *model.Facility
		unresolved *model.Unresolved
	}
	slots := make([]slot, len(facilities))

	var mu sync.Mutex
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i, f := range facilities {
		if f.Resolved() {
			f.Latitude = model.RoundCoordinate(f.Latitude)
			f.Longitude = model.RoundCoordinate(f.Longitude)
			fc := f
			slots[i] = slot{facility: &fc}
			continue
		}

		eg.Go(func() error {
			result, err := r.lookup(gCtx, f)
			if err != nil {
				if eris.Is(err, resilience.ErrCircuitOpen) || gCtx.Err() != nil {
					return err
				}
				mu.Lock()
				slots[i] = slot{unresolved: &model.Unresolved{
					FacilityID: f.ID,
					Address:    f.Address,
					Reason:     fmt.Sprintf("geocode error: %v", err),
				}}
				mu.Unlock()
				zap.L().Warn("resolver: geocode failed",
					zap.String("facility_id", f.ID),
					zap.Error(err),
				)
				return nil
			}

			if !result.Matched || !result.Exact {
				reason := "no geocoder match"
				if result.Matched {
					reason = fmt.Sprintf("match below required confidence (quality %s)", result.Quality)
				}
				mu.Lock()
				slots[i] = slot{unresolved: &model.Unresolved{
					FacilityID: f.ID,
					Address:    f.Address,
					Reason:     reason,
				}}
				mu.Unlock()
				return nil
			}

			fc := f
			fc.Latitude = model.RoundCoordinate(result.Latitude)
			fc.Longitude = model.RoundCoordinate(result.Longitude)
			mu.Lock()
			slots[i] = slot{facility: &fc}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "resolver: batch aborted")
	}

	out := &Outcome{}
	for _, s := range slots {
		switch {
		case s.facility != nil:
			out.Facilities = append(out.Facilities, *s.facility)
		case s.unresolved != nil:
			out.Unresolved = append(out.Unresolved, *s.unresolved)
		}
	}
	zap.L().Info("resolver: batch complete",
		zap.Int("resolved", len(out.Facilities)),
		zap.Int("unresolved", len(out.Unresolved)),
	)
	return out, nil
}

// lookup geocodes one address through the cache, breaker and retry layers.
func (r *Resolver) lookup(ctx context.Context, f model.Facility) (*geocode.Result, error) {
	key := store.CacheKey(f.Address)
	if r.cache != nil {
		if cached, ok, err := r.cache.CachedLookup(ctx, key); err != nil {
			zap.L().Warn("resolver: cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	if err := r.breaker.Allow(); err != nil {
		return nil, err
	}
	result, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*geocode.Result, error) {
		return r.client.Geocode(ctx, geocode.AddressInput{ID: f.ID, Street: f.Address})
	})
	r.breaker.Record(err)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.StoreLookup(ctx, key, result); err != nil {
			zap.L().Warn("resolver: cache write failed", zap.Error(err))
		}
	}
	return result, nil
}
