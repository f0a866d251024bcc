package cli

import (
	"maps"
	"os"

	"github.com/spf13/cobra"
)

// newGraphCmd creates the graph command: resolve the project and emit the
// dependency graph in Graphviz DOT format.
func newGraphCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the resolved dependency graph as DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := engineForCwd(cmd)
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

			deps := maps.Clone(mf.Dependencies)
			if deps == nil {
				deps = map[string]string{}
			}
			maps.Copy(deps, mf.DevDependencies)

			res, err := e.Resolver().Resolve(ctx, deps)
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return res.Graph.WriteDOT(out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write DOT to a file instead of stdout")

	return cmd
}
