package universe

import (
	"os"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/radius-cli/internal/model"
)

// WriteArtifact exports the universe as a CSV artifact. Rows are written in
// code order so the same universe always produces the same bytes.
func WriteArtifact(path string, records []model.CodeRecord) error {
	sorted := make([]model.CodeRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	data, err := csvutil.Marshal(sorted)
	if err != nil {
		return eris.Wrap(err, "universe: marshaling artifact")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "universe: writing artifact")
	}
	return nil
}

// ReadArtifact loads a universe artifact. Malformed rows are logged and
// dropped rather than failing the load; a duplicate code keeps the first
// occurrence, matching the first-source-wins policy at build time.
func ReadArtifact(path string) ([]model.CodeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "universe: reading artifact")
	}

	var raw []model.CodeRecord
	if err := csvutil.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "universe: parsing artifact")
	}

	seen := make(map[string]bool, len(raw))
	records := make([]model.CodeRecord, 0, len(raw))
	for _, rec := range raw {
		if err := rec.Validate(); err != nil {
			zap.L().Warn("universe: rejecting artifact row",
				zap.String("code", rec.Code),
				zap.Error(err),
			)
			continue
		}
		if seen[rec.Code] {
			zap.L().Warn("universe: duplicate code in artifact", zap.String("code", rec.Code))
			continue
		}
		seen[rec.Code] = true
		rec.Latitude = model.RoundCoordinate(rec.Latitude)
		rec.Longitude = model.RoundCoordinate(rec.Longitude)
		records = append(records, rec)
	}
	return records, nil
}
