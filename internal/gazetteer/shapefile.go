package gazetteer

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/radius-cli/internal/fetcher"
	"github.com/sells-group/radius-cli/internal/model"
)

// LoadShapefile builds a centroid source from a ZCTA5 boundary shapefile,
// for vintages where no gazetteer file was published. The centroid of each
// ZCTA polygon stands in for the published internal point.
func LoadShapefile(shpPath string) (*Source, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := -1
	for i, f := range reader.Fields() {
		if trimmedFieldName(f) == "ZCTA5CE20" || trimmedFieldName(f) == "ZCTA5CE10" {
			codeIdx = i
			break
		}
	}
	if codeIdx < 0 {
		return nil, eris.New("gazetteer: no ZCTA5 code field in shapefile")
	}

	records := make(map[string]model.CodeRecord)
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		centroid, err := polygonCentroid(poly)
		if err != nil {
			skipped++
			continue
		}

		rec := model.CodeRecord{
			Code:      code,
			Latitude:  model.RoundCoordinate(centroid[1]),
			Longitude: model.RoundCoordinate(centroid[0]),
		}
		if err := rec.Validate(); err != nil {
			skipped++
			zap.L().Warn("gazetteer: rejecting shapefile record", zap.String("code", code), zap.Error(err))
			continue
		}
		records[rec.Code] = rec
	}

	if skipped > 0 {
		zap.L().Debug("gazetteer: skipped shapefile records", zap.Int("skipped", skipped))
	}
	return &Source{records: records}, nil
}

// LoadShapefileZip extracts a zipped shapefile bundle to tempDir and loads
// the .shp it contains. Census ships ZCTA boundaries this way; the reader
// needs the .dbf and .shx sidecars next to the .shp, so the whole archive is
// extracted.
func LoadShapefileZip(zipPath, tempDir string) (*Source, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "gazetteer: create %s", tempDir)
	}
	paths, err := fetcher.ExtractZIP(zipPath, tempDir)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".shp") {
			return LoadShapefile(p)
		}
	}
	return nil, eris.Errorf("gazetteer: no .shp entry in %s", zipPath)
}

// polygonCentroid converts a shapefile polygon to go-geom form and computes
// its area centroid.
func polygonCentroid(p *shp.Polygon) (geom.Coord, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, eris.New("gazetteer: polygon has no valid rings")
	}
	return xy.Centroid(mp)
}

func trimmedFieldName(f shp.Field) string {
	return strings.TrimRight(f.String(), "\x00")
}
