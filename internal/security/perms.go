// Package security checks that vault files are private to their owner.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const (
	DirPerm  os.FileMode = 0o700
	FilePerm os.FileMode = 0o600
)

var (
	ErrEmptyPath     = errors.New("empty path not allowed")
	ErrInsecurePerms = errors.New("permissions allow access by other users")
	ErrNotDirectory  = errors.New("not a directory")
)

// EnsurePrivateDir creates dir with owner-only permissions if it is missing.
// An existing directory is left as is; use CheckPrivate to inspect it.
func EnsurePrivateDir(dir string) error {
	if dir == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	return nil
}

// EnsureParent creates the parent directory of path with owner-only
// permissions.
func EnsureParent(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	return EnsurePrivateDir(filepath.Dir(path))
}

// CheckPrivate reports ErrInsecurePerms when path can be read or written by
// group or others. A missing path is not an error. Windows has no mode bits
// to check.
func CheckPrivate(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("%s (%#o): %w", path, mode, ErrInsecurePerms)
	}
	return nil
}
