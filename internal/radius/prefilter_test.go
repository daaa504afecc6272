package radius

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/radius-cli/internal/model"
)

// syntheticUniverse scatters codes across the continental US latitude and
// longitude range with a fixed seed so failures reproduce.
func syntheticUniverse(t *testing.T, n int, seed int64) []model.CodeRecord {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	codes := make([]model.CodeRecord, 0, n)
	for i := 0; i < n; i++ {
		codes = append(codes, model.CodeRecord{
			Code:      model.FormatCode(i),
			Latitude:  model.RoundCoordinate(24 + rng.Float64()*(49-24)),
			Longitude: model.RoundCoordinate(-124 + rng.Float64()*(124-67)),
		})
	}
	return codes
}

// bruteForce is the exhaustive reference implementation the two-stage
// pipeline must agree with.
func bruteForce(facility model.Facility, codes []model.CodeRecord, radiusMiles float64) map[string]bool {
	within := make(map[string]bool)
	for _, c := range codes {
		if DistanceMiles(facility.Latitude, facility.Longitude, c.Latitude, c.Longitude) <= radiusMiles {
			within[c.Code] = true
		}
	}
	return within
}

func TestPrefilter_SupersetOfExactResult(t *testing.T) {
	codes := syntheticUniverse(t, 3000, 7)
	scan := NewLinearScan(codes)
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 50; trial++ {
		facility := model.Facility{
			ID:        "f",
			Latitude:  24 + rng.Float64()*(49-24),
			Longitude: -124 + rng.Float64()*(124-67),
		}
		miles := 5 + rng.Float64()*195

		exact := bruteForce(facility, codes, miles)
		candidates := scan.Candidates(facility, DeriveMargins(miles, facility.Latitude))

		candidateSet := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			candidateSet[c.Code] = true
		}
		for code := range exact {
			assert.True(t, candidateSet[code],
				"trial %d: code %s within %.2f mi missing from candidate set", trial, code, miles)
		}
	}
}

func TestPrefilter_TwoStageMatchesBruteForce(t *testing.T) {
	codes := syntheticUniverse(t, 3000, 13)
	scan := NewLinearScan(codes)
	rng := rand.New(rand.NewSource(17))

	for trial := 0; trial < 50; trial++ {
		facility := model.Facility{
			ID:        "f",
			Latitude:  24 + rng.Float64()*(49-24),
			Longitude: -124 + rng.Float64()*(124-67),
		}
		miles := 5 + rng.Float64()*95

		exact := bruteForce(facility, codes, miles)

		candidates := scan.Candidates(facility, DeriveMargins(miles, facility.Latitude))
		matches := Refine(facility, candidates, miles)

		require.Len(t, matches, len(exact), "trial %d", trial)
		for _, m := range matches {
			assert.True(t, exact[m.Code], "trial %d: unexpected match %s", trial, m.Code)
		}
	}
}

func TestRTreeIndex_EquivalentToLinearScan(t *testing.T) {
	codes := syntheticUniverse(t, 2000, 19)
	scan := NewLinearScan(codes)
	index := NewRTreeIndex(codes)
	rng := rand.New(rand.NewSource(23))

	for trial := 0; trial < 30; trial++ {
		facility := model.Facility{
			ID:        "f",
			Latitude:  24 + rng.Float64()*(49-24),
			Longitude: -124 + rng.Float64()*(124-67),
		}
		m := DeriveMargins(5+rng.Float64()*95, facility.Latitude)

		fromScan := scan.Candidates(facility, m)
		fromIndex := index.Candidates(facility, m)

		sortCodes(fromScan)
		sortCodes(fromIndex)
		assert.Equal(t, fromScan, fromIndex, "trial %d", trial)
	}
}

func TestPrefilter_OpenRectangleExcludesEdge(t *testing.T) {
	facility := model.Facility{ID: "f", Latitude: 40, Longitude: -74}
	m := Margins{Lat: 0.5, Lon: 0.5}

	onLatEdge := model.CodeRecord{Code: "00001", Latitude: 40.5, Longitude: -74}
	onLonEdge := model.CodeRecord{Code: "00002", Latitude: 40, Longitude: -73.5}
	inside := model.CodeRecord{Code: "00003", Latitude: 40.4999, Longitude: -74.4999}

	scan := NewLinearScan([]model.CodeRecord{onLatEdge, onLonEdge, inside})
	got := scan.Candidates(facility, m)
	require.Len(t, got, 1)
	assert.Equal(t, "00003", got[0].Code)
}

func TestPrefilter_WrapsAtAntimeridian(t *testing.T) {
	// Western Aleutians: the facility sits just west of 180 and the near
	// code just east, about 30 miles apart across the line.
	facility := model.Facility{ID: "adak", Latitude: 52.9, Longitude: -179.5}
	near := model.CodeRecord{Code: "99601", Latitude: 52.8, Longitude: 179.8}
	far := model.CodeRecord{Code: "99602", Latitude: 52.8, Longitude: 176.0}
	codes := []model.CodeRecord{near, far}
	m := DeriveMargins(50, facility.Latitude)

	for name, p := range map[string]Prefilter{
		"linear": NewLinearScan(codes),
		"rtree":  NewRTreeIndex(codes),
	} {
		got := p.Candidates(facility, m)
		require.Len(t, got, 1, "%s prefilter", name)
		assert.Equal(t, "99601", got[0].Code, "%s prefilter", name)
	}

	matches := Refine(facility, NewLinearScan(codes).Candidates(facility, m), 50)
	require.Len(t, matches, 1)
	assert.Equal(t, "99601", matches[0].Code)
}

func sortCodes(codes []model.CodeRecord) {
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
}
