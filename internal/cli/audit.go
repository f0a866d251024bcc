package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/boltpm/bolt/pkg/engine"
	"github.com/boltpm/bolt/pkg/security"
)

// newAuditCmd creates the audit command: run the supply-chain analysis
// over the project's dependencies (or the named packages) and report.
func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [package...]",
		Short: "Check dependencies for typosquats and suspicious names",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			names := args
			if len(names) == 0 {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				e, err := engine.New(ctx, cwd, logger)
				if err != nil {
					return err
				}
				defer e.Close()

				if err := e.EnsureInitialized(); err != nil {
					return err
				}
				mf, err := e.Manifest()
				if err != nil {
					return err
				}
				for name := range mf.Dependencies {
					names = append(names, name)
				}
				for name := range mf.DevDependencies {
					names = append(names, name)
				}
				slices.Sort(names)
			}

			flagged := 0
			for _, name := range names {
				analysis := security.Analyze(name)
				if !analysis.ShouldWarn() {
					continue
				}
				flagged++
				fmt.Printf("%s: risk %s\n", name, analysis.RiskLevel)
				if ts := analysis.Typosquat; ts != nil {
					fmt.Printf("  name is within edit distance %d of %q\n", ts.Distance, ts.SimilarTo)
				}
				if sn := analysis.SuspiciousName; sn != nil {
					fmt.Printf("  %s\n", sn.Reason)
				}
				for _, rec := range analysis.Recommendations {
					fmt.Printf("  - %s\n", rec)
				}
				if warning := security.SecurityWarning(name); warning != "" {
					fmt.Printf("  %s\n", warning)
				}
			}

			if flagged == 0 {
				logger.Info("no supply-chain warnings", "checked", len(names))
			} else {
				logger.Warn("packages flagged", "count", flagged, "checked", len(names))
			}
			return nil
		},
	}
}
