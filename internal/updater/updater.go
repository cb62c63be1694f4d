// Package updater replaces the running gpionode binary with the latest
// GitHub release and keeps one backup to roll back to.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/gpionode/internal/version"
)

// DefaultRepository is where releases are published.
const DefaultRepository = "smazurov/gpionode"

// Options configures an Updater.
type Options struct {
	Repository string
	Prerelease bool
	// BackupDir defaults to DefaultBackupDir.
	BackupDir string
}

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is what Status reports.
type Status struct {
	CurrentVersion string      `json:"current_version"`
	Executable     string      `json:"executable"`
	Writable       bool        `json:"writable"`
	Reason         string      `json:"reason,omitempty"`
	Backup         *BackupInfo `json:"backup,omitempty"`
}

type releaseSource interface {
	DetectLatest(ctx context.Context, repo selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater checks for and applies releases.
type Updater struct {
	repo    selfupdate.Repository
	source  releaseSource
	backups *backupManager
	logger  *slog.Logger
}

// New creates an Updater backed by GitHub releases.
func New(opts Options, logger *slog.Logger) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	if opts.BackupDir == "" {
		dir, err := DefaultBackupDir()
		if err != nil {
			return nil, err
		}
		opts.BackupDir = dir
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	backups, err := newBackupManager(opts.BackupDir, logger)
	if err != nil {
		return nil, err
	}
	return &Updater{
		repo:    selfupdate.ParseSlug(opts.Repository),
		source:  up,
		backups: backups,
		logger:  logger,
	}, nil
}

// Status reports whether the binary can be replaced and what backup exists.
func (u *Updater) Status() Status {
	st := Status{CurrentVersion: version.Version, Backup: u.backups.current()}
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	st.Executable = exe
	if err := checkWritable(filepath.Dir(exe)); err != nil {
		st.Reason = err.Error()
		return st
	}
	st.Writable = true
	return st
}

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*UpdateInfo, error) {
	_, info, err := u.latest(ctx)
	return info, err
}

func (u *Updater) latest(ctx context.Context) (*selfupdate.Release, *UpdateInfo, error) {
	release, found, err := u.source.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, nil, newError(ErrCodeNotFound, "no release for this platform", nil)
	}

	current := version.Version
	info := &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		AssetSize:       release.AssetByteSize,
		UpdateAvailable: outdated(current, release.GreaterThan),
	}
	return release, info, nil
}

// Apply installs the latest release over the running binary after
// backing it up. A failed install restores the backup. The caller
// restarts the service.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	release, info, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return nil, newError(ErrCodeApplyFailed, "failed to find executable", err)
	}
	if err := checkWritable(filepath.Dir(exe)); err != nil {
		return nil, newError(ErrCodeNotWritable, "cannot replace "+exe, err)
	}
	if err := u.backups.create(exe, info.CurrentVersion); err != nil {
		return nil, newError(ErrCodeBackupFailed, "failed to back up current binary", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.source.UpdateTo(ctx, release, exe); err != nil {
		if _, rbErr := u.backups.restore(); rbErr != nil {
			u.logger.Error("Automatic rollback failed", "error", rbErr)
		}
		return nil, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}
	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply.
func (u *Updater) Rollback() (BackupInfo, error) {
	if u.backups.current() == nil {
		return BackupInfo{}, newError(ErrCodeNoBackup, "no backup available", nil)
	}
	info, err := u.backups.restore()
	if err != nil {
		return BackupInfo{}, newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return info, nil
}

// outdated reports whether a release is newer than current. Builds that
// do not carry a semantic version, such as dev, are always outdated.
func outdated(current string, greaterThan func(string) bool) bool {
	if _, err := semver.NewVersion(current); err != nil {
		return true
	}
	return greaterThan(current)
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".gpionode.update.*")
	if err != nil {
		return fmt.Errorf("no write permission to %s: %w", dir, err)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}
