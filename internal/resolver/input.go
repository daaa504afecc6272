package resolver

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/radius-cli/internal/fetcher"
	"github.com/sells-group/radius-cli/internal/model"
)

// Facility lists arrive as CSV exports or spreadsheets with inconsistent
// column naming. The loaders map headers case-insensitively, accept a few
// common aliases, and reject rows whose coordinates do not parse or fall out
// of range. A rejected row is logged and dropped, never queried.

type columnMap struct {
	id, address, lat, lon, radius int
}

func mapColumns(header []string) (columnMap, error) {
	cm := columnMap{id: -1, address: -1, lat: -1, lon: -1, radius: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "facility_id", "id":
			cm.id = i
		case "address", "street_address", "location":
			cm.address = i
		case "latitude", "lat":
			cm.lat = i
		case "longitude", "lon", "lng":
			cm.lon = i
		case "radius_miles", "radius":
			cm.radius = i
		}
	}
	if cm.id == -1 {
		return cm, eris.New("resolver: input has no facility_id column")
	}
	if cm.address == -1 && (cm.lat == -1 || cm.lon == -1) {
		return cm, eris.New("resolver: input needs an address column or latitude/longitude columns")
	}
	return cm, nil
}

func parseRow(cm columnMap, row []string) (model.Facility, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	f := model.Facility{
		ID:      field(cm.id),
		Address: field(cm.address),
	}
	if f.ID == "" {
		return f, eris.New("resolver: row missing facility_id")
	}

	latStr, lonStr := field(cm.lat), field(cm.lon)
	if latStr != "" || lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return f, eris.Wrapf(err, "resolver: facility %s: bad latitude %q", f.ID, latStr)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return f, eris.Wrapf(err, "resolver: facility %s: bad longitude %q", f.ID, lonStr)
		}
		if err := model.ValidateCoordinate(lat, lon); err != nil {
			return f, eris.Wrapf(err, "resolver: facility %s", f.ID)
		}
		f.Latitude = model.RoundCoordinate(lat)
		f.Longitude = model.RoundCoordinate(lon)
	}

	if rStr := field(cm.radius); rStr != "" {
		r, err := strconv.ParseFloat(rStr, 64)
		if err != nil || r < 0 {
			return f, eris.Errorf("resolver: facility %s: bad radius %q", f.ID, rStr)
		}
		f.RadiusMiles = r
	}

	if f.Address == "" && !f.Resolved() {
		return f, eris.Errorf("resolver: facility %s has neither address nor coordinate", f.ID)
	}
	return f, nil
}

func collectRows(header []string, rows [][]string) ([]model.Facility, error) {
	cm, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var facilities []model.Facility
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		f, err := parseRow(cm, row)
		if err != nil {
			zap.L().Warn("resolver: rejecting input row", zap.Error(err))
			continue
		}
		facilities = append(facilities, f)
	}
	return facilities, nil
}

// ReadCSV loads a facility list from a CSV file with a header row.
func ReadCSV(ctx context.Context, path string) ([]model.Facility, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: opening %s", path)
	}
	defer f.Close()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	select {
	case header := <-headerCh:
		return collectRows(header, rows)
	default:
		return nil, eris.Errorf("resolver: %s is empty", path)
	}
}

// ReadXLSX loads a facility list from the first sheet of a spreadsheet, the
// first row being the header.
func ReadXLSX(path string) ([]model.Facility, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("resolver: %s is empty", path)
	}
	return collectRows(rows[0], rows[1:])
}
