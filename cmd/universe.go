package main

import "github.com/spf13/cobra"

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Postal-code universe management",
	Long:  "Build, inspect and export the validated postal-code universe.",
}

func init() { rootCmd.AddCommand(universeCmd) }
