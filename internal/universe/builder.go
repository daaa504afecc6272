// Package universe builds and persists the postal-code universe: every
// 5-digit code validated against the geocoding cascade, accepted only at
// maximum confidence.
package universe

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/internal/resilience"
	"github.com/sells-group/radius-cli/internal/store"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

const codeSpace = 100000

// Builder enumerates the 5-digit code space and records the codes the
// cascade resolves. The full pass takes hours at collaborator rate limits,
// so progress is checkpointed per chunk: a restarted build resumes after the
// last completed chunk instead of starting over.
type Builder struct {
	store       store.Store
	sources     []geocode.PostalSource
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	concurrency int
	chunkSize   int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithConcurrency sets how many codes are looked up in parallel.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithChunkSize sets the checkpoint granularity in codes.
func WithChunkSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.chunkSize = n
		}
	}
}

// WithRetryConfig overrides the per-lookup retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) BuilderOption {
	return func(b *Builder) {
		b.retry = cfg
	}
}

// WithBreaker overrides the collaborator circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) BuilderOption {
	return func(b *Builder) {
		b.breaker = cb
	}
}

// NewBuilder creates a Builder. Sources are consulted in the given order;
// the order is the tie-break policy, so callers pin it once.
func NewBuilder(st store.Store, sources []geocode.PostalSource, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:       st,
		sources:     sources,
		retry:       resilience.DefaultRetryConfig(),
		concurrency: 8,
		chunkSize:   250,
	}
	b.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("geocode collaborator circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildStats summarizes one build pass.
type BuildStats struct {
	BuildID  string
	Scanned  int
	Accepted int
	Failed   int // lookups that still erred after retries; skipped, not fatal
	Resumed  bool
}

// Run executes the build. Codes with no match anywhere are silently excluded;
// per-code failures after retries are logged and skipped; an unreachable
// collaborator (open circuit) aborts the build with an error rather than
// quietly emitting a partial universe. The checkpoint survives the abort, so
// the next run resumes.
func (b *Builder) Run(ctx context.Context) (*BuildStats, error) {
	stats := &BuildStats{}

	startFrom := 0
	cursor, err := b.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	if cursor != "" {
		n, convErr := codeToInt(cursor)
		if convErr != nil {
			return nil, convErr
		}
		startFrom = n + 1
		stats.Resumed = true
		zap.L().Info("resuming universe build", zap.String("cursor", cursor))
	}

	buildID, err := b.store.StartBuild(ctx)
	if err != nil {
		return nil, err
	}
	stats.BuildID = buildID

	for chunkStart := startFrom; chunkStart < codeSpace; chunkStart += b.chunkSize {
		chunkEnd := chunkStart + b.chunkSize
		if chunkEnd > codeSpace {
			chunkEnd = codeSpace
		}

		bySource, failed, err := b.runChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return stats, err
		}

		stats.Scanned += chunkEnd - chunkStart
		stats.Failed += failed

		for source, accepted := range bySource {
			stats.Accepted += len(accepted)
			if err := b.store.UpsertCodes(ctx, accepted, source); err != nil {
				return stats, err
			}
		}
		if err := b.store.SetCursor(ctx, model.FormatCode(chunkEnd-1)); err != nil {
			return stats, err
		}

		if chunkEnd%10000 == 0 {
			zap.L().Info("universe build progress",
				zap.String("through", model.FormatCode(chunkEnd-1)),
				zap.Int("accepted", stats.Accepted),
				zap.Int("failed", stats.Failed),
			)
		}
	}

	if err := b.store.ClearCursor(ctx); err != nil {
		return stats, err
	}
	if err := b.store.FinishBuild(ctx, buildID, stats.Scanned, stats.Accepted); err != nil {
		return stats, err
	}

	zap.L().Info("universe build complete",
		zap.String("build_id", buildID),
		zap.Int("scanned", stats.Scanned),
		zap.Int("accepted", stats.Accepted),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// chunkResult carries one accepted code with its winning source.
type chunkResult struct {
	record model.CodeRecord
	source string
}

func (b *Builder) runChunk(ctx context.Context, start, end int) (map[string][]model.CodeRecord, int, error) {
	results := make([]*chunkResult, end-start)
	var (
		mu     sync.Mutex
		failed int
	)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)

	for i := start; i < end; i++ {
		eg.Go(func() error {
			code := model.FormatCode(i)

			if err := b.breaker.Allow(); err != nil {
				return eris.Wrap(err, "universe: geocode collaborator unreachable")
			}

			result, err := resilience.DoVal(gCtx, b.retry, func(ctx context.Context) (*geocode.Result, error) {
				return geocode.LookupCascade(ctx, b.sources, code)
			})
			b.breaker.Record(err)
			if err != nil {
				if gCtx.Err() != nil {
					return err
				}
				// Single affected item: skip and log, the run continues.
				mu.Lock()
				failed++
				mu.Unlock()
				zap.L().Warn("universe: lookup failed after retries",
					zap.String("code", code),
					zap.Error(err),
				)
				return nil
			}

			if !result.Matched {
				// Not a valid postal code. Expected, not an error.
				return nil
			}

			rec := model.CodeRecord{
				Code:      code,
				Latitude:  model.RoundCoordinate(result.Latitude),
				Longitude: model.RoundCoordinate(result.Longitude),
			}
			if err := rec.Validate(); err != nil {
				zap.L().Warn("universe: rejecting malformed coordinate",
					zap.String("code", code),
					zap.Error(err),
				)
				return nil
			}
			results[i-start] = &chunkResult{record: rec, source: result.Source}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, failed, err
	}

	bySource := make(map[string][]model.CodeRecord)
	for _, r := range results {
		if r != nil {
			bySource[r.source] = append(bySource[r.source], r.record)
		}
	}
	return bySource, failed, nil
}

func codeToInt(code string) (int, error) {
	if err := model.ValidateCode(code); err != nil {
		return 0, eris.Wrap(err, "universe: bad cursor")
	}
	n := 0
	for _, r := range code {
		n = n*10 + int(r-'0')
	}
	return n, nil
}
