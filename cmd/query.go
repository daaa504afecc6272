package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/internal/radius"
	"github.com/sells-group/radius-cli/internal/resolver"
	"github.com/sells-group/radius-cli/internal/universe"
)

var (
	queryFacilities  string
	queryOut         string
	queryUniverse    string
	queryRadiusMiles float64
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find every postal code within radius of each facility",
	Long:  "Resolve the facility list, scan the postal-code universe around each facility, and write one (facility, code, distance) row per match.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("query"); err != nil {
			return err
		}
		if queryFacilities == "" {
			return eris.New("--facilities is required")
		}
		radiusMiles := cfg.Query.RadiusMiles
		if queryRadiusMiles > 0 {
			radiusMiles = queryRadiusMiles
		}

		// Universe: a CSV artifact when given, the store otherwise.
		var (
			codes []model.CodeRecord
			err   error
		)
		if queryUniverse != "" {
			codes, err = universe.ReadArtifact(queryUniverse)
		} else {
			st, storeErr := initStore(ctx)
			if storeErr != nil {
				return storeErr
			}
			defer st.Close()
			codes, err = st.Codes(ctx)
		}
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			return eris.New("universe is empty, run `radius-cli universe build` first")
		}

		facilities, err := readFacilities(ctx, queryFacilities)
		if err != nil {
			return err
		}

		resolverOpts := []resolver.Option{resolver.WithConcurrency(cfg.Query.Concurrency)}
		if cfg.Geocode.CacheLookups {
			st, storeErr := initStore(ctx)
			if storeErr != nil {
				return storeErr
			}
			defer st.Close()
			resolverOpts = append(resolverOpts, resolver.WithCache(st))
		}
		resolved, err := resolver.New(initGeocoder(), resolverOpts...).Resolve(ctx, facilities)
		if err != nil {
			return err
		}

		var prefilter radius.Prefilter
		if cfg.Query.Indexed {
			prefilter = radius.NewRTreeIndex(codes)
		} else {
			prefilter = radius.NewLinearScan(codes)
		}

		pipeline := radius.NewPipeline(prefilter, radiusMiles, cfg.Query.Concurrency)
		matches, counts, err := pipeline.Run(ctx, resolved.Facilities)
		if err != nil {
			return err
		}

		data, err := csvutil.Marshal(matches)
		if err != nil {
			return eris.Wrap(err, "query: marshal output")
		}
		if err := os.WriteFile(queryOut, data, 0o644); err != nil {
			return eris.Wrap(err, "query: write output")
		}

		fmt.Printf("Wrote %d matches to %s\n", len(matches), queryOut)
		radii := effectiveRadii(resolved.Facilities, radiusMiles)
		ids := make([]string, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %s: %d codes within %.1f mi\n", id, counts[id], radii[id])
		}
		for _, u := range resolved.Unresolved {
			fmt.Printf("  unresolved %s (%s): %s\n", u.FacilityID, u.Address, u.Reason)
		}
		return nil
	},
}

// effectiveRadii maps each facility to the radius its query actually used:
// the per-facility override when positive, the run-wide radius otherwise.
func effectiveRadii(facilities []model.Facility, def float64) map[string]float64 {
	out := make(map[string]float64, len(facilities))
	for _, f := range facilities {
		if f.RadiusMiles > 0 {
			out[f.ID] = f.RadiusMiles
		} else {
			out[f.ID] = def
		}
	}
	return out
}

func init() {
	queryCmd.Flags().StringVar(&queryFacilities, "facilities", "", "facility list (.csv or .xlsx)")
	queryCmd.Flags().StringVar(&queryOut, "out", "matches.csv", "match output path")
	queryCmd.Flags().StringVar(&queryUniverse, "universe", "", "universe CSV artifact (defaults to the store)")
	queryCmd.Flags().Float64Var(&queryRadiusMiles, "radius", 0, "radius in miles (overrides config)")
	rootCmd.AddCommand(queryCmd)
}
