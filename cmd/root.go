package cmd

import (
	"fmt"
	"os"

	"crowdbeat/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crowdbeat",
	Short: "CrowdBeat lets a live audience request songs from the DJ.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
