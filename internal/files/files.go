// Package files reads and writes the files a patch targets.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// ErrOutsideWorkspace is returned by Resolve for paths that escape the workspace root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// ReadText reads a file for patching. A missing file is not an error: the buffer is
// nil so that applying a diff to it fails with patch.ErrNullInput.
func ReadText(fullPath string) (*patch.Buffer, string, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	text := string(data)
	return patch.NewBuffer(text), text, nil
}

// WriteFileAtomic writes content to a file atomically using temp file + rename.
// The mode of an existing file is kept; new files get 0644 and missing parent
// directories are created.
func WriteFileAtomic(fullPath, content string) error {
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".kvit-patch-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // no-op after a successful rename

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	mode := fs.FileMode(0644)
	if info, err := os.Stat(fullPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		return fmt.Errorf("atomic rename failed: %w", err)
	}
	return nil
}

// IsLargeFile reports whether the file is bigger than limit bytes. Missing files are
// not large. A limit of 0 disables the check.
func IsLargeFile(fullPath string, limit int64) (bool, int64, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if info.IsDir() {
		return false, 0, fmt.Errorf("%s is a directory", fullPath)
	}
	return limit > 0 && info.Size() > limit, info.Size(), nil
}

// Resolve turns a user supplied path into an absolute path inside root.
// Relative paths are taken relative to root and "~/" expands to the home directory.
func Resolve(root, inputPath string) (string, error) {
	if inputPath == "" {
		return "", errors.New("empty path")
	}

	path := inputPath
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absRoot, path)
	}
	absPath = filepath.Clean(absPath)

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, inputPath)
	}
	return absPath, nil
}
