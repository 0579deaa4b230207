// Package worktree gives every dependency exactly one linked worktree of its
// cached bare repository, at a path the dependency owns.
//
// Prior state at that path is inferred from the filesystem, because it may
// have been left behind by interrupted runs, older versions of the tool or
// manual intervention. Observation, planning (PlanLocal, PlanName) and
// execution are kept apart so the policy can be tested without repositories.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrWorktreeNameConflict = errors.New("worktree name already in use")
	ErrCorruptLocalState    = errors.New("corrupt local state")
	ErrWorktreeFailed       = errors.New("worktree operation failed")
)

// DefaultBranchPrefix prefixes the branch created for each worktree.
const DefaultBranchPrefix = "pkgstrap-"

// Repository is the bare repository worktrees are attached to.
type Repository interface {
	// Path is the repository's git dir.
	Path() string
	BranchExists(name string) (bool, error)
	DeleteBranch(name string) error
}

// Manager creates, reuses and replaces worktrees.
type Manager struct {
	BranchPrefix string
}

// Worktree is a linked worktree of a cache repository.
type Worktree struct {
	// Path is the canonical location of the working directory.
	Path string
	// Name is the worktree's entry under the repository's worktrees dir.
	Name string
	// Branch is the branch created along with the worktree.
	Branch string
	// Created is set when the worktree did not exist before this call.
	Created bool
}

func (m *Manager) branchFor(name string) string {
	prefix := m.BranchPrefix
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	return prefix + name
}

// Observe inspects localPath against repo.
func (m *Manager) Observe(ctx context.Context, repo Repository, localPath string) (LocalState, error) {
	var state LocalState

	fi, err := os.Lstat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return state, fmt.Errorf("%w: %s: %w", ErrCorruptLocalState, localPath, err)
	default:
		state.Exists = true
		state.Symlink = fi.Mode()&os.ModeSymlink != 0
	}

	if state.Exists && !state.Symlink {
		gfi, err := os.Lstat(filepath.Join(localPath, ".git"))
		if err == nil {
			if gfi.IsDir() {
				state.GitDir = GitDirDirectory
			} else {
				state.GitDir = GitDirFile
			}
		}
	}

	registered, err := m.isRegistered(ctx, repo, localPath)
	if err != nil {
		return state, err
	}
	state.Registered = registered
	return state, nil
}

func (m *Manager) isRegistered(ctx context.Context, repo Repository, localPath string) (bool, error) {
	want, err := canonical(localPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorruptLocalState, localPath, err)
	}
	entries, err := listWorktrees(ctx, repo.Path())
	if err != nil {
		return false, fmt.Errorf("%w: listing worktrees of %s: %w", ErrWorktreeFailed, repo.Path(), err)
	}
	for _, e := range entries {
		got, err := canonical(e.Path)
		if err != nil {
			continue
		}
		if got == want {
			return true, nil
		}
	}
	return false, nil
}

// Ensure makes localPath a worktree of repo and returns it. A new worktree
// starts at startPoint, or at the repository's HEAD when startPoint is empty.
// Calling Ensure again for the same path and repository returns the same
// worktree.
func (m *Manager) Ensure(ctx context.Context, repo Repository, localPath, startPoint string) (*Worktree, error) {
	state, err := m.Observe(ctx, repo, localPath)
	if err != nil {
		return nil, err
	}

	switch PlanLocal(state) {
	case Reuse:
		path, err := filepath.EvalSymlinks(localPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptLocalState, localPath, err)
		}
		name := filepath.Base(path)
		return &Worktree{Path: path, Name: name, Branch: m.branchFor(name)}, nil
	case PruneStaleThenCreate:
		if _, err := git(ctx, repo.Path(), "worktree", "prune"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
		}
	case RemoveStaleThenCreate:
		if err := os.RemoveAll(localPath); err != nil {
			return nil, fmt.Errorf("%w: removing broken worktree %s: %w", ErrCorruptLocalState, localPath, err)
		}
		if _, err := git(ctx, repo.Path(), "worktree", "prune"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
		}
	case PruneForeignThenCreate:
		if err := pruneForeign(localPath, state.GitDir); err != nil {
			return nil, err
		}
	case RemoveLeftoverThenCreate:
		if err := os.RemoveAll(localPath); err != nil {
			return nil, fmt.Errorf("%w: removing leftover %s: %w", ErrCorruptLocalState, localPath, err)
		}
	}
	return m.create(ctx, repo, localPath, startPoint)
}

// pruneForeign removes the git working tree at localPath together with its
// administrative record.
func pruneForeign(localPath string, kind GitDirKind) error {
	if kind == GitDirFile {
		admin, err := readGitDirFile(filepath.Join(localPath, ".git"))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptLocalState, localPath, err)
		}
		// Only a real worktree admin dir is removed; anything else the .git
		// file points at is left alone.
		if _, err := os.Stat(filepath.Join(admin, "commondir")); err == nil {
			if err := os.RemoveAll(admin); err != nil {
				return fmt.Errorf("%w: pruning %s: %w", ErrCorruptLocalState, admin, err)
			}
		}
	}
	if err := os.RemoveAll(localPath); err != nil {
		return fmt.Errorf("%w: removing %s: %w", ErrCorruptLocalState, localPath, err)
	}
	return nil
}

// readGitDirFile returns the admin dir named by a "gitdir: <path>" file.
func readGitDirFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	dir, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("%s: not a gitdir file", path)
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(path), dir)
	}
	return filepath.Clean(dir), nil
}

// ObserveName inspects repo for an existing use of the worktree name and its
// branch.
func (m *Manager) ObserveName(repo Repository, name string) (NameState, error) {
	var state NameState

	admin := filepath.Join(repo.Path(), "worktrees", name)
	if _, err := os.Stat(admin); err == nil {
		state.AdminExists = true
		checkout, err := readAdminGitDir(admin)
		if err == nil {
			if _, err := os.Stat(checkout); err == nil {
				state.AdminCheckoutExists = true
			}
		}
	}

	exists, err := repo.BranchExists(m.branchFor(name))
	if err != nil {
		return state, fmt.Errorf("%w: looking up branch %s: %w", ErrWorktreeFailed, m.branchFor(name), err)
	}
	state.BranchExists = exists
	return state, nil
}

// readAdminGitDir returns the working directory an admin dir belongs to. Its
// gitdir file holds the path of the working directory's .git file.
func readAdminGitDir(admin string) (string, error) {
	data, err := os.ReadFile(filepath.Join(admin, "gitdir"))
	if err != nil {
		return "", err
	}
	dotGit := strings.TrimSpace(string(data))
	if !filepath.IsAbs(dotGit) {
		dotGit = filepath.Join(admin, dotGit)
	}
	return filepath.Dir(filepath.Clean(dotGit)), nil
}

func (m *Manager) create(ctx context.Context, repo Repository, localPath, startPoint string) (*Worktree, error) {
	name := filepath.Base(localPath)
	branch := m.branchFor(name)

	ns, err := m.ObserveName(repo, name)
	if err != nil {
		return nil, err
	}
	action := PlanName(ns)
	if action.Conflict {
		return nil, fmt.Errorf("%w: worktree %s of %s is still checked out elsewhere", ErrWorktreeNameConflict, name, repo.Path())
	}
	if action.RemoveStaleAdmin {
		admin := filepath.Join(repo.Path(), "worktrees", name)
		if err := os.RemoveAll(admin); err != nil {
			return nil, fmt.Errorf("%w: removing stale worktree metadata %s: %w", ErrWorktreeFailed, admin, err)
		}
	}
	if action.DeleteBranch {
		if err := repo.DeleteBranch(branch); err != nil {
			return nil, fmt.Errorf("%w: deleting branch %s: %w", ErrWorktreeFailed, branch, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptLocalState, err)
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptLocalState, err)
	}
	args := []string{"worktree", "add", "-b", branch, abs}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	if _, err := git(ctx, repo.Path(), args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
	}

	path, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
	}
	return &Worktree{Path: path, Name: name, Branch: branch, Created: true}, nil
}

// Head returns the commit the worktree's HEAD points at.
func (w *Worktree) Head(ctx context.Context) (string, error) {
	return head(ctx, w.Path)
}

// ForceCheckout detaches HEAD at target and overwrites the working tree,
// discarding local modifications.
func (w *Worktree) ForceCheckout(ctx context.Context, target string) error {
	_, err := git(ctx, w.Path, "checkout", "--force", "--detach", target)
	return err
}

// Remove deletes the worktree at localPath. Its registration in repo is
// dropped when repo is not nil.
func (m *Manager) Remove(ctx context.Context, repo Repository, localPath string) error {
	if repo != nil {
		state, err := m.Observe(ctx, repo, localPath)
		if err != nil {
			return err
		}
		if state.Registered && state.Exists && !state.Symlink && state.GitDir == GitDirFile {
			abs, err := filepath.Abs(localPath)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptLocalState, err)
			}
			if _, err := git(ctx, repo.Path(), "worktree", "remove", "--force", abs); err != nil {
				return fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
			}
		}
	}
	if err := os.RemoveAll(localPath); err != nil {
		return fmt.Errorf("%w: removing %s: %w", ErrCorruptLocalState, localPath, err)
	}
	if repo != nil {
		if _, err := git(ctx, repo.Path(), "worktree", "prune"); err != nil {
			return fmt.Errorf("%w: %w", ErrWorktreeFailed, err)
		}
	}
	return nil
}
