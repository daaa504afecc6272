package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/radius-cli/internal/resilience"
)

func TestGeocode_CensusSucceeds_NoGoogleCall(t *testing.T) {
	var googleCalled atomic.Int32

	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"result": {
				"addressMatches": [{
					"coordinates": {"x": -77.0365, "y": 38.8977},
					"matchedAddress": "1600 PENNSYLVANIA AVE NW, WASHINGTON, DC, 20500"
				}]
			}
		}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		googleCalled.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":38.9,"lng":-77.0},"location_type":"ROOFTOP"}}]}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), AddressInput{
		Street: "1600 Pennsylvania Ave NW", City: "Washington", State: "DC",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Exact)
	assert.Equal(t, "census", result.Source)
	assert.InDelta(t, 38.8977, result.Latitude, 1e-9)
	assert.InDelta(t, -77.0365, result.Longitude, 1e-9)
	assert.Equal(t, int32(0), googleCalled.Load(), "Google should not be called when Census succeeds")
}

func TestGeocode_CensusMiss_GoogleFallback(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 40.7128, "lng": -74.0060},
					"location_type": "ROOFTOP"
				}
			}]
		}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), AddressInput{
		Street: "123 Main St", City: "New York", State: "NY",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Exact)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestGeocode_GoogleInterpolatedIsNotExact(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 40.7128, "lng": -74.0060},
					"location_type": "RANGE_INTERPOLATED"
				}
			}]
		}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), AddressInput{Street: "12 Somewhere St"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.False(t, result.Exact, "interpolated matches are below maximum confidence")
	assert.Equal(t, "range", result.Quality)
}

func TestGeocode_BothMiss_NoMatchNoError(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), AddressInput{Street: "000 Nowhere"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_NoGoogleKey_CensusErrorPropagates(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer censusSrv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(censusSrv.URL, censusOneLineURL),
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), AddressInput{Street: "1 Main St"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "a 503 should be tagged transient")
}

func TestGeocodePostal_CensusMatch(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10013", r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"result": {
				"addressMatches": [{
					"coordinates": {"x": -74.0049, "y": 40.7185}
				}]
			}
		}`)
	}))
	defer censusSrv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(censusSrv.URL, censusOneLineURL),
		limiter:    newTestLimiter(),
	}

	result, err := g.GeocodePostal(context.Background(), PostalInput{Code: "10013"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Exact)
	assert.Equal(t, "census", result.Source)
}

func TestGeocodePostal_GooglePartialIsNotExact(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 40.7185, "lng": -74.0049},
					"location_type": "APPROXIMATE"
				},
				"types": ["postal_code"],
				"partial_match": true
			}]
		}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.GeocodePostal(context.Background(), PostalInput{Code: "10013"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.False(t, result.Exact, "partial postal matches are below maximum confidence")
}

func TestGeocodePostal_GoogleFullPostalIsExact(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 40.7185, "lng": -74.0049},
					"location_type": "APPROXIMATE"
				},
				"types": ["postal_code"]
			}]
		}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.GeocodePostal(context.Background(), PostalInput{Code: "10013"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Exact, "a full postal_code match is exact even though Google labels centroids APPROXIMATE")
	assert.Equal(t, "google", result.Source)
}

func TestGeocode_GoogleOverQueryLimitIsTransient(t *testing.T) {
	censusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer censusSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT", "results": []}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newDualClient(censusSrv.URL, googleSrv.URL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeGoogle(context.Background(), "12 Somewhere St", false)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, resilience.IsTransient(err))
}

func TestFormatOneLine(t *testing.T) {
	assert.Equal(t, "1 Main St, Springfield, IL, 62701", formatOneLine(AddressInput{
		Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701",
	}))
	assert.Equal(t, "10013", formatOneLine(AddressInput{ZipCode: "10013"}))
	assert.Equal(t, "", formatOneLine(AddressInput{}))
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	assert.Equal(t, "rooftop", googleLocationTypeToQuality("ROOFTOP"))
	assert.Equal(t, "range", googleLocationTypeToQuality("RANGE_INTERPOLATED"))
	assert.Equal(t, "centroid", googleLocationTypeToQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("SOMETHING_NEW"))
}
