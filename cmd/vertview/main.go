package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd opens documents, handing them to an already running instance when there is one.
var rootCmd = &cobra.Command{
	Use:   "vertview [files...]",
	Short: "A document viewer that keeps open files attached across renames",
	Long: `Vertview opens documents and keeps each open handle attached to its file while
the file is renamed, moved, or replaced on disk.

Features:
- Rename recovery by file identity with a size and mtime fallback
- Reference-counted directory watches
- Single primary instance per user session
- Later launches forward their files to the primary instance
- Prometheus metrics and health endpoints`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runOpen,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	registerFlags(rootCmd.PersistentFlags())
}

// registerFlags declares the configuration flags shared by all commands.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/vertview/config.yaml)")
	flags.StringP("log-level", "l", "info", "Set log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to a rotating file instead of stderr")
	flags.Duration("settle-delay", defaultSettleDelay, "Wait before searching for a renamed file")
	flags.Duration("forward-timeout", defaultForwardTimeout, "Timeout for handing files to a running instance")
	flags.Duration("read-timeout", defaultReadTimeout, "Inactivity timeout for incoming open requests")
	flags.String("endpoint-dir", "", "Directory holding the instance socket (default $XDG_RUNTIME_DIR or temp dir)")
	flags.String("endpoint-name", "", "Instance endpoint name (default derived from the user name)")
	flags.String("metrics-addr", "", "Serve /metrics and /health on this address (disabled when empty)")
	flags.Duration("metrics-interval", 0, "Log a metrics summary at this interval (disabled when zero)")
}
