package radius

import (
	"github.com/umahmood/haversine"

	"github.com/sells-group/radius-cli/internal/model"
)

// DistanceMiles computes the great-circle distance between two coordinates
// over a spherical Earth model.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	mi, _ := haversine.Distance(
		haversine.Coord{Lat: lat1, Lon: lon1},
		haversine.Coord{Lat: lat2, Lon: lon2},
	)
	return mi
}

// Refine computes the exact distance from the facility to each candidate and
// keeps those within radiusMiles. The bound is inclusive and applied to the
// unrounded distance; the reported distance is rounded to 2 decimals after
// the comparison, so a code at exactly R is never pushed out by rounding.
func Refine(facility model.Facility, candidates []model.CodeRecord, radiusMiles float64) []model.Match {
	var out []model.Match
	for _, c := range candidates {
		d := DistanceMiles(facility.Latitude, facility.Longitude, c.Latitude, c.Longitude)
		if d > radiusMiles {
			continue
		}
		out = append(out, model.Match{
			FacilityID:    facility.ID,
			FacilityLat:   facility.Latitude,
			FacilityLon:   facility.Longitude,
			Code:          c.Code,
			CodeLat:       c.Latitude,
			CodeLon:       c.Longitude,
			DistanceMiles: model.RoundMiles(d),
		})
	}
	return out
}
