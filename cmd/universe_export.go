package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/radius-cli/internal/universe"
)

var exportOut string

var universeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the universe as a CSV artifact",
	Long:  "Write the stored universe to a portable CSV artifact for query runs that do not touch the database.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		codes, err := st.Codes(ctx)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			return eris.New("universe is empty, run `radius-cli universe build` first")
		}

		if err := universe.WriteArtifact(exportOut, codes); err != nil {
			return err
		}
		fmt.Printf("Wrote %d codes to %s\n", len(codes), exportOut)
		return nil
	},
}

func init() {
	universeExportCmd.Flags().StringVar(&exportOut, "out", "universe.csv", "output artifact path")
	universeCmd.AddCommand(universeExportCmd)
}
