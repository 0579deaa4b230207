package acquire

import (
	"path/filepath"

	"github.com/leighmcculloch/pkgstrap/internal/manifest"
)

// Directories are the fixed base paths of a run.
type Directories struct {
	// State is the tool's working state root.
	State string
	// Deps is the default root of per-dependency targets.
	Deps string
	// Worktrees holds one local git worktree per dependency.
	Worktrees string
	// Cache holds the shared bare repositories.
	Cache string
}

// DefaultDirectories lays out a project rooted at stateDir and depsDir, with
// worktrees inside the state dir and the given shared cache root.
func DefaultDirectories(stateDir, depsDir, cacheDir string) Directories {
	return Directories{
		State:     stateDir,
		Deps:      depsDir,
		Worktrees: filepath.Join(stateDir, "git"),
		Cache:     cacheDir,
	}
}

// All lists the four roots.
func (d Directories) All() []string {
	return []string{d.State, d.Deps, d.Worktrees, d.Cache}
}

// DependencyDirs are the locations used while acquiring one dependency.
type DependencyDirs struct {
	Base Directories
	// Target is the primary symlink location.
	Target string
	// InTree are additional symlink locations mirroring Target.
	InTree []string
	// Worktree is the dependency's local worktree path.
	Worktree string
}

// For returns the locations of the named dependency.
func (d Directories) For(name string, dep manifest.Dependency) DependencyDirs {
	target := dep.Target
	if target == "" {
		target = filepath.Join(d.Deps, name)
	}
	return DependencyDirs{
		Base:     d,
		Target:   target,
		InTree:   dep.Links,
		Worktree: filepath.Join(d.Worktrees, name),
	}
}

// Targets returns the primary target followed by the in-tree targets.
func (dd DependencyDirs) Targets() []string {
	return append([]string{dd.Target}, dd.InTree...)
}
