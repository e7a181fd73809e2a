// Package cmd wires the canvasd command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "canvasd",
	Short: "canvasd - progressive artifact streaming engine",
	Long: `canvasd turns streams of tool-invocation events into de-duplicated,
renderable canvas artifacts and serves them over HTTP and SSE.

Run "canvasd serve" to start the engine.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
