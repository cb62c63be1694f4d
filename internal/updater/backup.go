package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFilename     = "gpionode.backup"
	backupInfoFilename = "backup.json"
)

// BackupInfo describes the binary saved before the last update.
type BackupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *BackupInfo
	logger *slog.Logger
}

// DefaultBackupDir is ~/.cache/gpionode/backup.
func DefaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "gpionode", "backup"), nil
}

func newBackupManager(dir string, logger *slog.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.load()
	return m, nil
}

func (m *backupManager) load() {
	data, err := os.ReadFile(filepath.Join(m.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Ignoring unreadable backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(m.dir, backupFilename)); err != nil {
		m.logger.Warn("Backup binary missing", "dir", m.dir)
		return
	}
	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
}

// create copies execPath aside and records it as running version.
func (m *backupManager) create(execPath, version string) error {
	if err := copyFile(execPath, filepath.Join(m.dir, backupFilename)); err != nil {
		return err
	}

	info := BackupInfo{Version: version, CreatedAt: time.Now().UTC(), ExecPath: execPath}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", version, "dir", m.dir)
	return nil
}

// restore copies the backup over the binary it was taken from.
func (m *backupManager) restore() (BackupInfo, error) {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return BackupInfo{}, errors.New("no backup available")
	}
	if err := copyFile(filepath.Join(m.dir, backupFilename), info.ExecPath); err != nil {
		return BackupInfo{}, err
	}
	m.logger.Info("Backup restored", "version", info.Version, "path", info.ExecPath)
	return *info, nil
}

func (m *backupManager) current() *BackupInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return nil
	}
	info := *m.info
	return &info
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, so a running binary is replaced rather than truncated.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
