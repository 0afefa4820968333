package main

import (
	"github.com/spf13/cobra"
)

// Exit codes. ExitCodeError is returned for any unclassified failure;
// everything below reserves room for future semantic exit codes without
// clients matching on exact text.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

var rootCmd = &cobra.Command{
	Use:   "proxyd",
	Short: "Multiplex many MCP servers behind one inbound MCP endpoint",
	Long: `proxyd aggregates a configured set of outbound MCP servers behind a
single inbound MCP endpoint, namespacing their tools, resources, and
prompts and presenting a filtered, per-session view over all of them.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.SetVersionTemplate(`{{printf "proxyd version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		return ExitCodeError
	}
	return ExitCodeSuccess
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
}
