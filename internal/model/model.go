// Package model defines the records flowing through the radius pipeline.
package model

import (
	"fmt"
	"math"
	"regexp"

	"github.com/rotisserie/eris"
)

// codePattern matches a 5-digit zero-padded postal code.
var codePattern = regexp.MustCompile(`^\d{5}$`)

// CodeRecord is one entry of the postal-code universe: a validated code and
// its centroid coordinate. Codes the geocoder rejected are absent from the
// universe, never stored with null coordinates.
type CodeRecord struct {
	Code      string  `csv:"code" json:"code"`
	Latitude  float64 `csv:"latitude" json:"latitude"`
	Longitude float64 `csv:"longitude" json:"longitude"`
}

// Facility is a reference point for a radius query. RadiusMiles overrides the
// run-wide radius when positive.
type Facility struct {
	ID          string  `csv:"facility_id" json:"id"`
	Address     string  `csv:"address" json:"address"`
	Latitude    float64 `csv:"latitude" json:"latitude"`
	Longitude   float64 `csv:"longitude" json:"longitude"`
	RadiusMiles float64 `csv:"radius_miles,omitempty" json:"radius_miles,omitempty"`
}

// Resolved reports whether the facility already carries a usable coordinate.
func (f Facility) Resolved() bool {
	return !(f.Latitude == 0 && f.Longitude == 0) && ValidateCoordinate(f.Latitude, f.Longitude) == nil
}

// Match is one (facility, code) pair within the query radius. The
// (FacilityID, Code) key is unique by construction: each facility scans the
// universe once and every code appears in the universe once.
type Match struct {
	FacilityID    string  `csv:"facility_id" json:"facility_id"`
	FacilityLat   float64 `csv:"facility_latitude" json:"facility_latitude"`
	FacilityLon   float64 `csv:"facility_longitude" json:"facility_longitude"`
	Code          string  `csv:"code" json:"code"`
	CodeLat       float64 `csv:"code_latitude" json:"code_latitude"`
	CodeLon       float64 `csv:"code_longitude" json:"code_longitude"`
	DistanceMiles float64 `csv:"distance_miles" json:"distance_miles"`
}

// Unresolved records a facility address that failed to geocode at the
// required confidence. The run continues without it.
type Unresolved struct {
	FacilityID string `json:"facility_id"`
	Address    string `json:"address"`
	Reason     string `json:"reason"`
}

// ValidateCode checks the 5-digit zero-padded code format.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return eris.Errorf("model: invalid postal code %q (want 5 digits)", code)
	}
	return nil
}

// ValidateCoordinate rejects out-of-range or non-finite coordinates so they
// never reach distance computation.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return eris.Errorf("model: non-finite coordinate (%v, %v)", lat, lon)
	}
	if lat < -90 || lat > 90 {
		return eris.Errorf("model: latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return eris.Errorf("model: longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// Validate checks both the code format and coordinate ranges of a CodeRecord.
func (c CodeRecord) Validate() error {
	if err := ValidateCode(c.Code); err != nil {
		return err
	}
	if err := ValidateCoordinate(c.Latitude, c.Longitude); err != nil {
		return eris.Wrapf(err, "model: code %s", c.Code)
	}
	return nil
}

// FormatCode zero-pads an integer in [0, 99999] to the canonical 5-digit form.
func FormatCode(n int) string {
	return fmt.Sprintf("%05d", n)
}

// RoundCoordinate truncates a coordinate to the artifact's 4-decimal
// precision, about 11 m at the equator. Plenty for radii measured in miles.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// RoundMiles rounds a distance to the reported 2-decimal precision.
func RoundMiles(v float64) float64 {
	return math.Round(v*100) / 100
}
