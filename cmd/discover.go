package cmd

import (
	"fmt"
	"github.com/smazurov/gpionode/internal/discovery"
	"github.com/spf13/cobra"
)

// CreateDiscoverCmd creates the discover command.
func CreateDiscoverCmd() *cobra.Command {
	var asJSON bool
	timeout := discovery.DefaultScanTimeout

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find gpionode instances on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			commandLogger("discovery", false)
			nodes, err := discovery.Scan(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, nodes)
			}
			if len(nodes) == 0 {
				fmt.Fprintln(out, "No gpionode instances found")
				return nil
			}
			rows := make([][]string, 0, len(nodes))
			for _, n := range nodes {
				rows = append(rows, []string{
					n.Instance,
					n.Address,
					dash(n.Metadata["model"]),
					dash(n.Metadata["backend"]),
					dash(n.Metadata["version"]),
				})
			}
			return renderTable(out, []string{"INSTANCE", "ADDRESS", "MODEL", "BACKEND", "VERSION"}, rows)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "How long to browse")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
