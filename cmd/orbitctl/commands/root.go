package commands

import (
	"github.com/spf13/cobra"
)

var (
	// dbPath is the path to the directory's SQLite database file, used
	// by the directory subcommands for direct (offline) inspection.
	dbPath string

	// peers is a "node=host:port,..." address book used by invoke to
	// reach a running cluster without joining it as a full node.
	peers string

	// nodeIdentity names this CLI's own ephemeral node identity when it
	// dials out as an invoke client.
	nodeIdentity string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "orbitctl",
	Short: "Inspect and drive a running Orbit cluster",
	Long: `orbitctl is an operator CLI for the Orbit virtual-actor runtime.

Use it to inspect directory placements, query a node's status, and invoke
addressable methods against a running cluster.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to the directory's SQLite database (default: ~/.orbit/directory.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&peers, "peers", "",
		"Comma-separated node=host:port address book used to reach the cluster",
	)
	rootCmd.PersistentFlags().StringVar(
		&nodeIdentity, "node", "orbitctl",
		"Node identity this CLI presents when dialing out",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(invokeCmd)
}
