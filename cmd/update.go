package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/gpionode/internal/systemd"
	"github.com/smazurov/gpionode/internal/updater"
	"github.com/spf13/cobra"
)

const updateTimeout = 5 * time.Minute

// CreateUpdateCmd creates the update command: check, apply, rollback and
// status against GitHub releases.
func CreateUpdateCmd() *cobra.Command {
	var opts updater.Options
	var verbose, asJSON bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the gpionode binary from GitHub releases",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Repository, "repo", updater.DefaultRepository, "GitHub repository owner/name")
	flags.BoolVar(&opts.Prerelease, "prerelease", false, "Consider pre-releases")
	flags.StringVar(&opts.BackupDir, "backup-dir", "", "Backup directory (default ~/.cache/gpionode/backup)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	flags.BoolVar(&asJSON, "json", false, "Print JSON")

	withUpdater := func(fn func(ctx context.Context, cmd *cobra.Command, u *updater.Updater) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			u, err := updater.New(opts, commandLogger("updater", verbose))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
			defer cancel()
			return fn(ctx, cmd, u)
		}
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Show the latest release",
		Args:  cobra.NoArgs,
		RunE: withUpdater(func(ctx context.Context, cmd *cobra.Command, u *updater.Updater) error {
			info, err := u.Check(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			if info.UpdateAvailable {
				fmt.Fprintf(cmd.OutOrStdout(), "Update available: %s -> %s\n%s\n", info.CurrentVersion, info.LatestVersion, info.ReleaseURL)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Up to date (%s)\n", info.CurrentVersion)
			}
			return nil
		}),
	}

	var restart, user bool
	var unit string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Install the latest release over this binary",
		Args:  cobra.NoArgs,
		RunE: withUpdater(func(ctx context.Context, cmd *cobra.Command, u *updater.Updater) error {
			info, err := u.Apply(ctx)
			var upErr *updater.Error
			if errors.As(err, &upErr) && upErr.Code == updater.ErrCodeNoUpdate {
				fmt.Fprintf(cmd.OutOrStdout(), "Up to date (%s)\n", info.CurrentVersion)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if restart {
				return restartUnit(ctx, cmd, unit, user)
			}
			return nil
		}),
	}

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the binary saved by the last apply",
		Args:  cobra.NoArgs,
		RunE: withUpdater(func(ctx context.Context, cmd *cobra.Command, u *updater.Updater) error {
			info, err := u.Rollback()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", info.ExecPath, info.Version)
			if restart {
				return restartUnit(ctx, cmd, unit, user)
			}
			return nil
		}),
	}
	for _, c := range []*cobra.Command{apply, rollback} {
		c.Flags().BoolVar(&restart, "restart", false, "Restart the systemd unit afterwards")
		c.Flags().StringVar(&unit, "unit", systemd.DefaultUnit, "systemd unit name")
		c.Flags().BoolVar(&user, "user", false, "Use the user service manager")
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the running version and backup",
		Args:  cobra.NoArgs,
		RunE: withUpdater(func(_ context.Context, cmd *cobra.Command, u *updater.Updater) error {
			st := u.Status()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			backup := "none"
			if st.Backup != nil {
				backup = fmt.Sprintf("%s (%s)", st.Backup.Version, st.Backup.CreatedAt.Format(time.RFC3339))
			}
			writable := "yes"
			if !st.Writable {
				writable = "no: " + st.Reason
			}
			return renderTable(cmd.OutOrStdout(), []string{"Field", "Value"}, [][]string{
				{"Version", st.CurrentVersion},
				{"Executable", st.Executable},
				{"Writable", writable},
				{"Backup", backup},
			})
		}),
	}

	cmd.AddCommand(check, apply, rollback, status)
	return cmd
}

func restartUnit(ctx context.Context, cmd *cobra.Command, unit string, user bool) error {
	m, err := systemd.NewManager(ctx, unit, user)
	if err != nil {
		return err
	}
	defer m.Close()
	result, err := m.Restart(ctx)
	if err != nil {
		return err
	}
	if result != "done" {
		return fmt.Errorf("restart %s: job %s", unit, result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s\n", unit)
	return nil
}
