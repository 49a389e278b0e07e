package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// errFound stops a walk once the target is located.
var errFound = errors.New("found")

// FindFile searches dir recursively for a file named name. Directories are
// walked in lexical order and the first match wins. ok is false when the
// file does not exist anywhere below dir or dir itself is missing.
func (d *Discovery) FindFile(dir, name string) (path string, ok bool, err error) {
	root := d.resolve(dir)
	if _, statErr := os.Stat(root); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to stat %s: %w", root, statErr)
	}

	walkErr := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped rather than failing the search.
			if entry != nil && entry.IsDir() && p != root {
				return fs.SkipDir
			}
			return err
		}
		if !entry.IsDir() && entry.Name() == name {
			path = p
			return errFound
		}
		return nil
	})

	switch {
	case errors.Is(walkErr, errFound):
		return path, true, nil
	case walkErr != nil:
		return "", false, fmt.Errorf("failed to search %s: %w", root, walkErr)
	default:
		return "", false, nil
	}
}

// FindExcelFiles lists every workbook below dir, sorted by path.
func (d *Discovery) FindExcelFiles(dir string) ([]FileInfo, error) {
	root := d.resolve(dir)

	var files []FileInfo
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		// Excel lock files (~$Book.xlsx) are not workbooks.
		if strings.HasPrefix(name, "~$") || !(strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:    p,
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workbooks under %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}
