package cli

import (
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cobra"

	"github.com/boltpm/bolt/pkg/engine"
)

// newInstallCmd creates the install command: resolve the manifest, fetch
// and extract what is missing, link node_modules, write the lockfile.
func newInstallCmd() *cobra.Command {
	var (
		force         bool
		preferOffline bool
		production    bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the project's dependencies",
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

			// devDependencies participate only for the root project.
			deps := maps.Clone(mf.Dependencies)
			if deps == nil {
				deps = map[string]string{}
			}
			if !production {
				maps.Copy(deps, mf.DevDependencies)
			}
			maps.Copy(deps, mf.OptionalDependencies)

			track := newProgress(logger)
			res, err := e.Resolver().Resolve(ctx, deps)
			if err != nil {
				return err
			}
			track.done(fmt.Sprintf("Resolved %d packages", len(res.Lockfile.Packages)))

			offline := preferOffline || e.Config.Cache.Offline
			track = newProgress(logger)
			inst := e.Installer()
			result, err := inst.Install(ctx, res, force, offline)
			if err != nil {
				return err
			}
			if err := inst.Link(ctx, res); err != nil {
				return err
			}
			track.done(fmt.Sprintf("Installed %d packages (%d from cache, %d bytes downloaded)",
				result.InstalledCount, result.CachedCount, result.BytesDownloaded))

			return res.Lockfile.Save(e.ProjectDir)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-fetch packages even when cached")
	cmd.Flags().BoolVar(&preferOffline, "prefer-offline", false, "use cached archives without hitting the network")
	cmd.Flags().BoolVar(&production, "production", false, "skip devDependencies")

	return cmd
}
