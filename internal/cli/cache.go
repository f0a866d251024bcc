package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boltpm/bolt/pkg/engine"
)

// newCacheCmd creates the cache management command.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared package cache",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and package counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engineForCwd(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := e.Cache.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("packages:  %d\n", stats.PackageCount)
			fmt.Printf("tarballs:  %d\n", stats.TarballCount)
			fmt.Printf("disk size: %d bytes\n", stats.TotalSize)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached package and archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engineForCwd(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Cache.Clear(); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("cache cleared", "dir", e.Cache.Root())
			return nil
		},
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engineForCwd(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Println(e.Cache.Root())
			return nil
		},
	}
}

func engineForCwd(cmd *cobra.Command) (*engine.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return engine.New(cmd.Context(), cwd, loggerFromContext(cmd.Context()))
}
