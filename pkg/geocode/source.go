package geocode

import (
	"context"

	"go.uber.org/zap"
)

// PostalSource is a single backend capable of resolving postal-code
// centroids. The universe builder consults sources in a fixed order and
// pins first-accepted-source-wins: the first source returning an exact match
// owns the coordinate for that code, later sources are never consulted.
type PostalSource interface {
	Name() string
	LookupPostal(ctx context.Context, code string) (*Result, error)
	Available() bool
}

// censusPostalSource resolves codes through the Census endpoint only.
type censusPostalSource struct {
	g *geocoder
}

// CensusPostalSource wraps a Client's Census backend as a PostalSource.
// The Client must have been built by NewClient.
func CensusPostalSource(c Client) PostalSource {
	g, ok := c.(*geocoder)
	if !ok {
		return nil
	}
	return &censusPostalSource{g: g}
}

func (s *censusPostalSource) Name() string    { return "census" }
func (s *censusPostalSource) Available() bool { return true }

func (s *censusPostalSource) LookupPostal(ctx context.Context, code string) (*Result, error) {
	return s.g.geocodeCensus(ctx, AddressInput{ZipCode: code})
}

// googlePostalSource resolves codes through Google only.
type googlePostalSource struct {
	g *geocoder
}

// GooglePostalSource wraps a Client's Google backend as a PostalSource.
// Returns a source that reports unavailable when no API key is configured.
func GooglePostalSource(c Client) PostalSource {
	g, ok := c.(*geocoder)
	if !ok {
		return nil
	}
	return &googlePostalSource{g: g}
}

func (s *googlePostalSource) Name() string    { return "google" }
func (s *googlePostalSource) Available() bool { return s.g.googleKey != "" }

func (s *googlePostalSource) LookupPostal(ctx context.Context, code string) (*Result, error) {
	return s.g.geocodeGooglePostal(ctx, PostalInput{Code: code, Country: "US"})
}

// LookupCascade consults sources in order and returns the first exact match.
// Provider errors fall through to the next source; the caller decides whether
// the per-source error rate warrants aborting (see resilience.CircuitBreaker).
func LookupCascade(ctx context.Context, sources []PostalSource, code string) (*Result, error) {
	var lastErr error
	for _, s := range sources {
		if !s.Available() {
			continue
		}
		result, err := s.LookupPostal(ctx, code)
		if err != nil {
			zap.L().Debug("geocode: source error, trying next",
				zap.String("source", s.Name()),
				zap.String("code", code),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result != nil && result.Matched && result.Exact {
			return result, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return &Result{Matched: false}, nil
}
