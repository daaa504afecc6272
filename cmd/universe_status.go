package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var universeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show universe build status",
	Long:  "Display the stored code count and any in-progress build checkpoint.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		count, err := st.CountCodes(ctx)
		if err != nil {
			return err
		}
		cursor, err := st.Cursor(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Codes stored: %d\n", count)
		if cursor != "" {
			fmt.Printf("Build in progress, checkpoint at %s\n", cursor)
		} else {
			fmt.Println("No build in progress")
		}
		return nil
	},
}

func init() { universeCmd.AddCommand(universeStatusCmd) }
