package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/gpionode/internal/systemd"
	"github.com/spf13/cobra"
)

const serviceTimeout = 30 * time.Second

// CreateServiceCmd creates the service command and its status, start,
// stop and restart subcommands.
func CreateServiceCmd() *cobra.Command {
	var unit string
	var user bool

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Control the gpionode systemd unit",
	}
	cmd.PersistentFlags().StringVar(&unit, "unit", systemd.DefaultUnit, "systemd unit name")
	cmd.PersistentFlags().BoolVar(&user, "user", false, "Use the user service manager")

	withManager := func(fn func(ctx context.Context, cmd *cobra.Command, m *systemd.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), serviceTimeout)
			defer cancel()
			m, err := systemd.NewManager(ctx, unit, user)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(ctx, cmd, m)
		}
	}

	var asJSON bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the unit state",
		Args:  cobra.NoArgs,
		RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *systemd.Manager) error {
			st, err := m.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s), %s\n", st.Unit, st.ActiveState, st.SubState, st.LoadState)
			return nil
		}),
	}
	status.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	job := func(use, short string, run func(*systemd.Manager, context.Context) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *systemd.Manager) error {
				result, err := run(m, ctx)
				if err != nil {
					return err
				}
				if result != "done" {
					return fmt.Errorf("%s %s: job %s", use, unit, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", use, unit, result)
				return nil
			}),
		}
	}

	cmd.AddCommand(
		status,
		job("start", "Start the unit", (*systemd.Manager).Start),
		job("stop", "Stop the unit", (*systemd.Manager).Stop),
		job("restart", "Restart the unit", (*systemd.Manager).Restart),
	)
	return cmd
}
