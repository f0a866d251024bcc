package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. This is
// typically called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the bolt CLI and returns an error if any command fails.
//
// The function sets up the root command with all subcommands (install,
// add, audit, cache, graph), configures logging based on the --verbose
// flag, and executes the command tree. The logger is attached to the
// context and accessible to all commands via loggerFromContext.
func Execute() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "bolt",
		Short:        "Bolt is a fast, deterministic package manager",
		Long:         `Bolt installs JavaScript dependencies deterministically: every resolution is pinned in a tamper-evident lockfile and every archive is verified against its registry digest before extraction.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("bolt %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newGraphCmd())

	return root.ExecuteContext(context.Background())
}
