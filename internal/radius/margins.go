// Package radius implements the two-stage radius query: a bounding-box
// prefilter that narrows the postal-code universe to a guaranteed superset of
// the answer, and a great-circle refiner that computes exact distances over
// that candidate set only.
package radius

import "math"

const (
	// minMilesPerDegree is a lower bound on the miles spanned by one degree
	// of arc on the Earth model used by the refiner. Deriving margins with a
	// lower bound keeps every margin an over-estimate, which is what makes
	// the prefiltered box a guaranteed superset of the radius circle.
	minMilesPerDegree = 68.70

	// marginSlack widens the derived margins slightly so the strict-inequality
	// box cannot clip a candidate sitting exactly on the circle.
	marginSlack = 1e-6

	// maxCosLat caps the latitude used for the cosine correction. Above this
	// the box degenerates; the US universe never gets there, but the math
	// should not divide by zero if a facility does.
	maxCosLat = 89.0
)

// Margins holds the half-widths, in degrees, of a facility's bounding box.
type Margins struct {
	Lat float64
	Lon float64
}

// DeriveMargins computes box margins for the given radius and facility
// latitude. The longitude margin shrinks with cos(latitude) and uses the
// cosine at the poleward edge of the box, not the facility latitude itself:
// a fixed margin calibrated at the facility's own latitude can clip true
// positives near the box's high-latitude edge.
func DeriveMargins(radiusMiles, facilityLat float64) Margins {
	if radiusMiles < 0 {
		radiusMiles = 0
	}

	latMargin := radiusMiles/minMilesPerDegree + marginSlack

	edgeLat := math.Abs(facilityLat) + latMargin
	if edgeLat > maxCosLat {
		edgeLat = maxCosLat
	}
	cosEdge := math.Cos(edgeLat * math.Pi / 180)

	lonMargin := radiusMiles/(minMilesPerDegree*cosEdge) + marginSlack

	return Margins{Lat: latMargin, Lon: lonMargin}
}
