package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "dtpanel/internal/errors"
)

// Manager provides file management operations
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a new file manager instance
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "files")}
}

// FileExists checks if a file exists at the given path
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AtomicWrite writes the output of write to a temp file next to path, syncs
// it and renames it over path. On any failure the temp file is removed and
// path is left untouched. Permission failures become WriteConflict errors.
func (m *Manager) AtomicWrite(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return m.classify(path, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		committed = true
		return m.classify(path, fmt.Errorf("failed to replace file: %w", err))
	}
	committed = true

	m.logger.Debug("File written", slog.String("path", path))
	return nil
}

func (m *Manager) classify(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) || isSharingViolation(err) {
		return apperrors.NewWriteConflictError(path, err)
	}
	return err
}

// CopyFile copies a file from source to destination
func (m *Manager) CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return dstFile.Sync()
}

// MoveFile moves a file, replacing any existing destination. A rename is
// tried first; across file systems it falls back to copy and delete.
func (m *Manager) MoveFile(src, dst string) error {
	m.logger.Info("Moving file", slog.String("src", src), slog.String("dst", dst))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := m.CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// ArchiveResult reports what happened to each file given to Archive.
type ArchiveResult struct {
	Moved   []string
	Missing []string
	Failed  map[string]error
}

// Archive moves each file into archiveDir under its base name. Missing
// files are skipped and a failure on one file does not stop the others.
func (m *Manager) Archive(archiveDir string, paths ...string) (*ArchiveResult, error) {
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", archiveDir, err)
	}

	result := &ArchiveResult{Failed: make(map[string]error)}
	for _, src := range paths {
		if !m.FileExists(src) {
			m.logger.Warn("Nothing to archive", slog.String("path", src))
			result.Missing = append(result.Missing, src)
			continue
		}

		dst := filepath.Join(archiveDir, filepath.Base(src))
		if err := m.MoveFile(src, dst); err != nil {
			m.logger.Error("Archive failed", slog.String("path", src), slog.String("error", err.Error()))
			result.Failed[src] = m.classify(dst, err)
			continue
		}
		result.Moved = append(result.Moved, dst)
	}

	m.logger.Info("Archive complete",
		slog.String("archive_dir", archiveDir),
		slog.Int("moved", len(result.Moved)),
		slog.Int("missing", len(result.Missing)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}
