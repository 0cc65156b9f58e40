// Package cli implements the aquamand command-line entrypoint using Cobra.
// It is intentionally thin: everything it does is call into
// internal/proxy, internal/credential and internal/audit.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tech4242/aquaman/internal/log"
)

var (
	verbose    bool
	jsonLogs   bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "aquamand",
	Short: "aquaman - local credential-injection proxy with a tamper-evident audit log",
	Long: `aquamand runs the local credential-injection reverse proxy: it strips
client-supplied auth headers, injects the real secret from a configured
credential backend, forwards to the real upstream, and appends a
hash-chained audit entry for every credential access.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Init(log.Options{
			Verbose:    verbose,
			JSONFormat: jsonLogs,
		})
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aquaman.yaml", "path to aquaman.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
}
