package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/telemetry"
	"github.com/spf13/cobra"
)

// CreateTelemetryCmd creates the telemetry command.
func CreateTelemetryCmd() *cobra.Command {
	var root string
	var timeout time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Collect host telemetry once and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := commandLogger("telemetry", verbose)
			model := board.DetectModel()
			host := telemetry.NewHost(root, telemetry.ExecRunner, model, board.IsRaspberryPi(model), logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			snap, err := host.Collect(ctx)
			if err != nil {
				return fmt.Errorf("collect telemetry: %w", err)
			}
			snap.RefreshedAt = time.Now().UTC()
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}

	cmd.Flags().StringVar(&root, "root", "/", "Filesystem root to read procfs and sysfs from")
	cmd.Flags().DurationVar(&timeout, "timeout", telemetry.DefaultTimeout, "Collection timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log collection details")
	return cmd
}
