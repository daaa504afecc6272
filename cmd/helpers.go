package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/internal/resolver"
	"github.com/sells-group/radius-cli/internal/store"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	ttl := store.WithCacheTTLDays(cfg.Geocode.CacheTTLDays)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path, ttl)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, ttl)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func initGeocoder() geocode.Client {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithTimeout(time.Duration(cfg.Geocode.TimeoutSecs) * time.Second),
	}
	if cfg.Geocode.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	return geocode.NewClient(opts...)
}

// readFacilities loads a facility list, dispatching on the file extension.
func readFacilities(ctx context.Context, path string) ([]model.Facility, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return resolver.ReadXLSX(path)
	}
	return resolver.ReadCSV(ctx, path)
}
