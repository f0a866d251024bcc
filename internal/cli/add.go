package cli

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boltpm/bolt/pkg/engine"
	"github.com/boltpm/bolt/pkg/security"
)

// newAddCmd creates the add command: record new dependencies in the
// manifest, resolve, install, and pin them.
func newAddCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "add <package>[@constraint]...",
		Short: "Add dependencies to the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

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

			for _, arg := range args {
				name, constraint := splitSpec(arg)

				if analysis := security.Analyze(name); analysis.ShouldWarn() {
					for _, rec := range analysis.Recommendations {
						logger.Warn(rec)
					}
				}

				if dev {
					if mf.DevDependencies == nil {
						mf.DevDependencies = map[string]string{}
					}
					mf.DevDependencies[name] = constraint
				} else {
					if mf.Dependencies == nil {
						mf.Dependencies = map[string]string{}
					}
					mf.Dependencies[name] = constraint
				}
				logger.Info("added dependency", "package", name, "constraint", constraint)
			}

			deps := maps.Clone(mf.Dependencies)
			if deps == nil {
				deps = map[string]string{}
			}
			maps.Copy(deps, mf.DevDependencies)

			res, err := e.Resolver().Resolve(ctx, deps)
			if err != nil {
				return err
			}

			inst := e.Installer()
			result, err := inst.Install(ctx, res, false, e.Config.Cache.Offline)
			if err != nil {
				return err
			}
			if err := inst.Link(ctx, res); err != nil {
				return err
			}
			logger.Info(fmt.Sprintf("Installed %d packages", result.InstalledCount+result.CachedCount))

			if err := mf.Save(e.ProjectDir); err != nil {
				return err
			}
			return res.Lockfile.Save(e.ProjectDir)
		},
	}

	cmd.Flags().BoolVarP(&dev, "dev", "D", false, "add to devDependencies")

	return cmd
}

// splitSpec splits "name@constraint" keeping the scope's leading "@"
// intact. A bare name defaults to the latest version.
func splitSpec(spec string) (name, constraint string) {
	at := strings.LastIndex(spec, "@")
	if at <= 0 { // bare name, or scope-only "@scope/pkg"
		return spec, "latest"
	}
	return spec[:at], spec[at+1:]
}
