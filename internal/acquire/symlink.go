package acquire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrPathConflict       = errors.New("path exists and is not a symlink")
	ErrCanonicalizeFailed = errors.New("path invalid or unsupported")
)

// EnsureSymlink points linkPath at the canonical form of sourceDir. A symlink
// already at linkPath is replaced. Anything else at linkPath is left alone
// and reported as ErrPathConflict.
func EnsureSymlink(linkPath, sourceDir string) error {
	source, err := filepath.EvalSymlinks(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCanonicalizeFailed, sourceDir, err)
	}
	source, err = filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCanonicalizeFailed, sourceDir, err)
	}

	fi, err := os.Lstat(linkPath)
	switch {
	case err == nil && fi.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(linkPath); err != nil {
			return fmt.Errorf("could not remove symlink %s: %w", linkPath, err)
		}
	case err == nil:
		return fmt.Errorf("%w: %s", ErrPathConflict, linkPath)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("could not inspect %s: %w", linkPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", linkPath, err)
	}
	if err := os.Symlink(source, linkPath); err != nil {
		return fmt.Errorf("failed to symlink %s -> %s: %w", linkPath, source, err)
	}
	return nil
}

// RemoveSymlink deletes linkPath if it is a symlink. Missing paths are
// ignored and anything else is ErrPathConflict.
func RemoveSymlink(linkPath string) error {
	fi, err := os.Lstat(linkPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%w: %s", ErrPathConflict, linkPath)
	}
	return os.Remove(linkPath)
}

// LinksTo reports whether linkPath is a symlink resolving to sourceDir.
func LinksTo(linkPath, sourceDir string) bool {
	fi, err := os.Lstat(linkPath)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	got, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		return false
	}
	want, err := filepath.EvalSymlinks(sourceDir)
	if err != nil {
		return false
	}
	return got == want
}
