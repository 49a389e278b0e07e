package files

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dtpanel/internal/errors"
)

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "final_data.csv")
	m := NewManager(nil)

	require.NoError(t, m.AtomicWrite(target, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}))
	require.NoError(t, m.AtomicWrite(target, func(w io.Writer) error {
		_, err := io.WriteString(w, "second")
		return err
	}))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may remain")
}

func TestAtomicWrite_WriterErrorKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tfp_result.csv")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	m := NewManager(nil)
	boom := errors.New("boom")
	err := m.AtomicWrite(target, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWrite_PermissionDeniedIsWriteConflict(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}

	dir := filepath.Join(t.TempDir(), "locked")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	err := NewManager(nil).AtomicWrite(filepath.Join(dir, "final_data.csv"), func(w io.Writer) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeWriteConflict))
	assert.Contains(t, err.Error(), "close the file")
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "final_data.csv")
	dst := filepath.Join(dir, "archive_v1", "final_data.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(dst, []byte("stale"), 0644))

	m := NewManager(nil)
	require.NoError(t, m.MoveFile(src, dst))

	assert.False(t, m.FileExists(src))
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "test content", string(content), "existing destination is replaced")
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "a.txt")
	dst := filepath.Join(dir, "nested", "b.txt")

	m := NewManager(nil)
	require.NoError(t, m.CopyFile(src, dst))
	assert.FileExists(t, src)
	assert.FileExists(t, dst)

	assert.Error(t, m.CopyFile(filepath.Join(dir, "absent"), dst))
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	panel := touch(t, dir, "final_data.csv")
	tfp := touch(t, dir, "tfp_result.csv")
	report := filepath.Join(dir, "regression_report.txt")
	archiveDir := filepath.Join(dir, "archive_v1")

	m := NewManager(nil)
	result, err := m.Archive(archiveDir, panel, tfp, report)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(archiveDir, "final_data.csv"),
		filepath.Join(archiveDir, "tfp_result.csv"),
	}, result.Moved)
	assert.Equal(t, []string{report}, result.Missing)
	assert.Empty(t, result.Failed)

	assert.NoFileExists(t, panel)
	assert.NoFileExists(t, tfp)
	assert.FileExists(t, filepath.Join(archiveDir, "tfp_result.csv"))
}
