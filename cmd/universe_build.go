package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/radius-cli/internal/fetcher"
	"github.com/sells-group/radius-cli/internal/gazetteer"
	"github.com/sells-group/radius-cli/internal/universe"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

var (
	buildGazetteerFile string
	buildNoGazetteer   bool
)

var universeBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the postal-code universe",
	Long:  "Scan the full 5-digit code space through the geocoding cascade and persist every validated code. Interrupted builds resume from the last checkpoint.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("universe"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client := initGeocoder()
		sources := []geocode.PostalSource{
			geocode.CensusPostalSource(client),
		}
		if src := geocode.GooglePostalSource(client); src != nil && src.Available() {
			sources = append(sources, src)
		}

		if !buildNoGazetteer {
			gaz, err := loadGazetteer(ctx)
			if err != nil {
				return err
			}
			sources = append(sources, gaz)
		}

		b := universe.NewBuilder(st, sources,
			universe.WithConcurrency(cfg.Universe.Concurrency),
			universe.WithChunkSize(cfg.Universe.ChunkSize),
		)
		stats, err := b.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Universe build %s complete\n", stats.BuildID)
		fmt.Printf("  scanned:  %d\n", stats.Scanned)
		fmt.Printf("  accepted: %d\n", stats.Accepted)
		fmt.Printf("  failed:   %d\n", stats.Failed)
		if stats.Resumed {
			fmt.Println("  (resumed from checkpoint)")
		}
		return nil
	},
}

func loadGazetteer(ctx context.Context) (*gazetteer.Source, error) {
	if buildGazetteerFile != "" {
		switch {
		case strings.HasSuffix(strings.ToLower(buildGazetteerFile), ".shp"):
			return gazetteer.LoadShapefile(buildGazetteerFile)
		case strings.HasSuffix(strings.ToLower(buildGazetteerFile), ".zip"):
			return gazetteer.LoadShapefileZip(buildGazetteerFile, cfg.Universe.TempDir)
		default:
			return gazetteer.LoadFile(ctx, buildGazetteerFile)
		}
	}

	var f fetcher.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	if strings.HasPrefix(cfg.Universe.GazetteerURL, "ftp://") {
		f = fetcher.NewFTPFetcher(0)
	}
	// The archive holds a single .txt entry named after the archive itself.
	entry := strings.TrimSuffix(filepath.Base(cfg.Universe.GazetteerURL), ".zip") + ".txt"
	return gazetteer.Fetch(ctx, f, cfg.Universe.GazetteerURL, entry, cfg.Universe.TempDir)
}

func init() {
	universeBuildCmd.Flags().StringVar(&buildGazetteerFile, "gazetteer-file", "", "local gazetteer .txt, ZCTA .shp, or zipped shapefile bundle instead of downloading")
	universeBuildCmd.Flags().BoolVar(&buildNoGazetteer, "no-gazetteer", false, "skip the gazetteer fallback source")
	universeCmd.AddCommand(universeBuildCmd)
}
