// clipit: clipboard history capture and persistence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipit",
		Short: "Clipboard history",
		Long: `clipit records every distinct clipboard capture (text, url, mail,
color and image) into a SQLite database and exposes the history to the
terminal picker, the CLI and a loopback HTTP API.

Run "clipit run" to start capturing. The other commands read and edit the
same database and may be used while the daemon runs.

Settings are read from settings.{json,toml,yaml} in the data directory
(default ~/.ClipIT) or the file given with --config.

Precedence (lowest to highest): defaults, settings file, CLIPIT_* env vars, flags`,
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.String("config", "", "path to settings file (overrides lookup in the data directory)")
	f.String("data-dir", "", "data directory (default ~/.ClipIT)")
	f.String("log-format", "auto", "log format: auto|text|json")
	f.String("log-level", "", "log level: debug|info|warn|error (default: info for run, warn otherwise)")

	root.AddCommand(
		newRunCmd(),
		newStopCmd(),
		newListCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newPurgeCmd(),
		newPickCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipit %s\n", Version)
		},
	}
}
