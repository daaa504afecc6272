package radius

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/radius-cli/internal/model"
)

// Pipeline runs the prefilter → refine stages across a batch of facilities.
// Facilities share no mutable state, so the batch fans out over an errgroup;
// each worker fills its own result slot and the slots are bulk-merged at the
// end, never appended to concurrently.
type Pipeline struct {
	prefilter   Prefilter
	radiusMiles float64
	concurrency int
}

// NewPipeline creates a Pipeline with the given default radius. A facility's
// RadiusMiles overrides the default when positive.
func NewPipeline(prefilter Prefilter, radiusMiles float64, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		prefilter:   prefilter,
		radiusMiles: radiusMiles,
		concurrency: concurrency,
	}
}

// QueryOne runs both stages for a single facility.
func (p *Pipeline) QueryOne(facility model.Facility) []model.Match {
	miles := p.radiusMiles
	if facility.RadiusMiles > 0 {
		miles = facility.RadiusMiles
	}

	m := DeriveMargins(miles, facility.Latitude)
	candidates := p.prefilter.Candidates(facility, m)
	matches := Refine(facility, candidates, miles)

	zap.L().Info("facility query complete",
		zap.String("facility_id", facility.ID),
		zap.Float64("radius_miles", miles),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
	)
	return matches
}

// Run queries every facility and returns the merged result table plus the
// per-facility match counts an operator needs to spot implausible outputs.
func (p *Pipeline) Run(ctx context.Context, facilities []model.Facility) ([]model.Match, map[string]int, error) {
	perFacility := make([][]model.Match, len(facilities))

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	for i, f := range facilities {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perFacility[i] = p.QueryOne(f)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int, len(facilities))
	for i, f := range facilities {
		counts[f.ID] = len(perFacility[i])
	}

	return Aggregate(perFacility), counts, nil
}

// Aggregate merges per-facility result lists into one table, ordered by
// (facility_id, code) so identical inputs produce identical artifacts.
// No deduplication: keys are unique by construction.
func Aggregate(perFacility [][]model.Match) []model.Match {
	var total int
	for _, matches := range perFacility {
		total += len(matches)
	}

	out := make([]model.Match, 0, total)
	for _, matches := range perFacility {
		out = append(out, matches...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FacilityID != out[j].FacilityID {
			return out[i].FacilityID < out[j].FacilityID
		}
		return out[i].Code < out[j].Code
	})
	return out
}
