package radius

import (
	"github.com/sells-group/radius-cli/internal/model"
)

// Prefilter narrows the universe to candidates inside a facility's bounding
// box. The contract: the returned set is a superset of every code within the
// query radius (no false negatives); false positives are expected and cheap,
// the refiner removes them.
type Prefilter interface {
	Candidates(facility model.Facility, m Margins) []model.CodeRecord
}

// inBox applies the open-rectangle membership test. Strict inequality on both
// axes; the derived margins carry slack, so boundary candidates still pass.
// The longitude delta wraps at the antimeridian, so a facility in the western
// Aleutians still sees candidates on the east-longitude side of 180.
func inBox(c model.CodeRecord, facility model.Facility, m Margins) bool {
	dLat := c.Latitude - facility.Latitude
	if dLat < 0 {
		dLat = -dLat
	}
	if dLat >= m.Lat {
		return false
	}
	dLon := c.Longitude - facility.Longitude
	if dLon < 0 {
		dLon = -dLon
	}
	if dLon > 180 {
		dLon = 360 - dLon
	}
	return dLon < m.Lon
}

// LinearScan is the baseline prefilter: a predicate filter over the full
// universe slice. O(universe) per facility, fine at tens of thousands of
// codes and hundreds of facilities.
type LinearScan struct {
	codes []model.CodeRecord
}

// NewLinearScan creates a prefilter over the given universe.
func NewLinearScan(codes []model.CodeRecord) *LinearScan {
	return &LinearScan{codes: codes}
}

// Candidates implements Prefilter.
func (s *LinearScan) Candidates(facility model.Facility, m Margins) []model.CodeRecord {
	var out []model.CodeRecord
	for _, c := range s.codes {
		if inBox(c, facility, m) {
			out = append(out, c)
		}
	}
	return out
}
