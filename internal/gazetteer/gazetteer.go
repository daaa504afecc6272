// Package gazetteer builds an offline postal-code centroid source from Census
// ZCTA products. It backs the third slot of the universe builder's cascade:
// codes the online collaborators reject can still resolve against the
// published ZCTA centroids, with no network dependency at lookup time.
package gazetteer

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/radius-cli/internal/fetcher"
	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

// Gazetteer file layout (tab-separated, one header row):
// GEOID ALAND AWATER ALAND_SQMI AWATER_SQMI INTPTLAT INTPTLONG
const (
	colGEOID  = 0
	colLat    = 5
	colLon    = 6
	numFields = 7
)

// Source is an in-memory centroid table implementing geocode.PostalSource.
type Source struct {
	records map[string]model.CodeRecord
}

// Name implements geocode.PostalSource.
func (s *Source) Name() string { return "gazetteer" }

// Available implements geocode.PostalSource.
func (s *Source) Available() bool { return s != nil && len(s.records) > 0 }

// Len returns the number of loaded centroids.
func (s *Source) Len() int { return len(s.records) }

// LookupPostal implements geocode.PostalSource. The published centroid is the
// authoritative value for a ZCTA, so a hit is maximum confidence.
func (s *Source) LookupPostal(_ context.Context, code string) (*geocode.Result, error) {
	rec, ok := s.records[code]
	if !ok {
		return &geocode.Result{Matched: false, Source: "gazetteer"}, nil
	}
	return &geocode.Result{
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Source:    "gazetteer",
		Quality:   "centroid",
		Matched:   true,
		Exact:     true,
	}, nil
}

// LoadFile reads a gazetteer TSV from disk.
func LoadFile(ctx context.Context, path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(ctx, f)
}

// Parse reads gazetteer rows from r. Rows with malformed coordinates or codes
// are rejected and logged at ingestion; they never reach distance math.
func Parse(ctx context.Context, r io.Reader) (*Source, error) {
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: '\t',
		HasHeader: true,
		TrimSpace: true,
	})

	records := make(map[string]model.CodeRecord)
	var rejected int
	for row := range rows {
		if len(row) < numFields {
			rejected++
			continue
		}

		rec, err := parseRow(row)
		if err != nil {
			rejected++
			zap.L().Warn("gazetteer: rejecting row", zap.String("geoid", row[colGEOID]), zap.Error(err))
			continue
		}
		records[rec.Code] = rec
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse")
	}

	zap.L().Info("gazetteer loaded",
		zap.Int("centroids", len(records)),
		zap.Int("rejected", rejected),
	)
	return &Source{records: records}, nil
}

func parseRow(row []string) (model.CodeRecord, error) {
	code := row[colGEOID]
	if err := model.ValidateCode(code); err != nil {
		return model.CodeRecord{}, err
	}

	lat, err := strconv.ParseFloat(row[colLat], 64)
	if err != nil {
		return model.CodeRecord{}, eris.Wrapf(err, "gazetteer: latitude for %s", code)
	}
	lon, err := strconv.ParseFloat(row[colLon], 64)
	if err != nil {
		return model.CodeRecord{}, eris.Wrapf(err, "gazetteer: longitude for %s", code)
	}

	rec := model.CodeRecord{
		Code:      code,
		Latitude:  model.RoundCoordinate(lat),
		Longitude: model.RoundCoordinate(lon),
	}
	if err := rec.Validate(); err != nil {
		return model.CodeRecord{}, err
	}
	return rec, nil
}

// Fetch downloads the gazetteer archive (http or ftp URL), extracts the
// single data file, and parses it.
func Fetch(ctx context.Context, f fetcher.Fetcher, url, fileName, tempDir string) (*Source, error) {
	archive := tempDir + "/gazetteer.zip"
	if _, err := f.DownloadToFile(ctx, url, archive); err != nil {
		return nil, eris.Wrap(err, "gazetteer: download")
	}

	dataPath, err := fetcher.ExtractZIPFile(archive, fileName, tempDir)
	if err != nil {
		return nil, err
	}
	return LoadFile(ctx, dataPath)
}
