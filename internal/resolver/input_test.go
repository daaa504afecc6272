package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facilities.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeTempCSV(t, `facility_id,address,latitude,longitude,radius_miles
F1,"1 Main St, Springfield",,,
F2,,40.7128,-74.0060,25
F3,"3 Oak Ave, Portland",,,
`)

	facilities, err := ReadCSV(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, facilities, 3)

	assert.Equal(t, "F1", facilities[0].ID)
	assert.Equal(t, "1 Main St, Springfield", facilities[0].Address)
	assert.False(t, facilities[0].Resolved())

	assert.True(t, facilities[1].Resolved())
	assert.Equal(t, 40.7128, facilities[1].Latitude)
	assert.Equal(t, 25.0, facilities[1].RadiusMiles)
}

func TestReadCSVHeaderAliases(t *testing.T) {
	path := writeTempCSV(t, `id,location,lat,lng
F1,,41.8781,-87.6298
`)

	facilities, err := ReadCSV(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, facilities, 1)
	assert.Equal(t, 41.8781, facilities[0].Latitude)
	assert.Equal(t, -87.6298, facilities[0].Longitude)
}

func TestReadCSVDropsBadRows(t *testing.T) {
	path := writeTempCSV(t, `facility_id,address,latitude,longitude
F1,"1 Main St",,
F2,,95.0,-74.0
F3,,not-a-number,-74.0
,orphan row,,
F4,,40.0,-74.0
`)

	facilities, err := ReadCSV(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, facilities, 2)
	assert.Equal(t, "F1", facilities[0].ID)
	assert.Equal(t, "F4", facilities[1].ID)
}

func TestReadCSVMissingColumns(t *testing.T) {
	path := writeTempCSV(t, "name,city\nfoo,bar\n")
	_, err := ReadCSV(context.Background(), path)
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facilities.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Facilities")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{"facility_id", "address", "latitude", "longitude"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("F1")
	row.AddCell().SetString("1 Main St, Springfield")
	row.AddCell().SetString("")
	row.AddCell().SetString("")
	row2 := sheet.AddRow()
	row2.AddCell().SetString("F2")
	row2.AddCell().SetString("")
	row2.AddCell().SetFloat(33.749)
	row2.AddCell().SetFloat(-84.388)
	require.NoError(t, f.Save(path))

	facilities, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, facilities, 2)
	assert.Equal(t, "1 Main St, Springfield", facilities[0].Address)
	assert.True(t, facilities[1].Resolved())
	assert.Equal(t, 33.749, facilities[1].Latitude)
}
