// Package geocode resolves addresses and postal codes to coordinates via the
// Census Geocoder (primary) and Google (fallback), with an exact-confidence
// gate for callers that cannot accept interpolated matches.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses and bare postal codes.
type Client interface {
	// Geocode resolves a street address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// GeocodePostal resolves a postal code to its centroid.
	GeocodePostal(ctx context.Context, in PostalInput) (*Result, error)
}

// AddressInput is an address to geocode.
type AddressInput struct {
	ID      string // optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// PostalInput is a bare postal code to resolve to a centroid.
type PostalInput struct {
	Code    string
	Country string // defaults to "US"
}

// Result holds the output for one lookup. Exact is the provider-specific
// "maximum confidence" signal: swapping providers means re-validating what
// counts as exact (see each provider's quality mapping).
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census", "google", "gazetteer"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
	Exact     bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit applied to all outbound
// collaborator calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		g.httpClient.Timeout = d
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves a street address, trying Census first, then Google if
// configured. A miss from every provider is not an error, just unmatched.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		return result, nil
	}
	if censusErr != nil && g.googleKey == "" {
		return nil, censusErr
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, formatOneLine(addr), false)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
		if censusErr != nil && googleErr != nil {
			return nil, googleErr
		}
	}

	return &Result{Matched: false}, nil
}

// GeocodePostal resolves a postal code centroid, Census first, Google second.
func (g *geocoder) GeocodePostal(ctx context.Context, in PostalInput) (*Result, error) {
	if in.Country == "" {
		in.Country = "US"
	}

	result, censusErr := g.geocodeCensus(ctx, AddressInput{ZipCode: in.Code})
	if censusErr == nil && result.Matched {
		return result, nil
	}
	if censusErr != nil && g.googleKey == "" {
		return nil, censusErr
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGooglePostal(ctx, in)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
		if censusErr != nil && googleErr != nil {
			return nil, googleErr
		}
	}

	return &Result{Matched: false}, nil
}
