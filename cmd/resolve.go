package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/radius-cli/internal/resolver"
)

var (
	resolveFacilities string
	resolveOut        string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Geocode a facility list",
	Long:  "Resolve facility addresses to coordinates at exact confidence and write the resolved list. Addresses that fail are reported and skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if resolveFacilities == "" {
			return eris.New("--facilities is required")
		}

		facilities, err := readFacilities(ctx, resolveFacilities)
		if err != nil {
			return err
		}

		opts := []resolver.Option{resolver.WithConcurrency(cfg.Query.Concurrency)}
		if cfg.Geocode.CacheLookups {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			opts = append(opts, resolver.WithCache(st))
		}

		r := resolver.New(initGeocoder(), opts...)
		out, err := r.Resolve(ctx, facilities)
		if err != nil {
			return err
		}

		data, err := csvutil.Marshal(out.Facilities)
		if err != nil {
			return eris.Wrap(err, "resolve: marshal output")
		}
		if err := os.WriteFile(resolveOut, data, 0o644); err != nil {
			return eris.Wrap(err, "resolve: write output")
		}

		fmt.Printf("Resolved %d of %d facilities to %s\n", len(out.Facilities), len(facilities), resolveOut)
		for _, u := range out.Unresolved {
			fmt.Printf("  unresolved %s (%s): %s\n", u.FacilityID, u.Address, u.Reason)
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFacilities, "facilities", "", "facility list (.csv or .xlsx)")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "resolved.csv", "resolved facility output path")
	rootCmd.AddCommand(resolveCmd)
}
