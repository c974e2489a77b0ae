package cmd

import (
	"crowdbeat/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the CrowdBeat server",
	Long:  `Start the CrowdBeat HTTP server: the attendee API, the DJ dashboard API and the playback bridge websocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
