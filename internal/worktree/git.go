package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// git runs a git command in the specified directory and returns stdout. The
// repository must be dir itself: git never looks for one in dir's parents.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_CEILING_DIRECTORIES="+ceiling(dir),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// ceiling returns the directory git must not search at or above when
// discovering the repository of dir.
func ceiling(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Dir(dir)
	}
	parent := filepath.Dir(abs)
	if resolved, err := filepath.EvalSymlinks(parent); err == nil {
		return resolved
	}
	return parent
}

// entry is one record of `git worktree list --porcelain`.
type entry struct {
	Path     string
	Bare     bool
	Prunable bool
}

// listWorktrees returns the linked worktrees registered in the repository at
// repoDir, excluding the bare repository itself.
func listWorktrees(ctx context.Context, repoDir string) ([]entry, error) {
	output, err := git(ctx, repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var entries []entry
	var current *entry
	flush := func() {
		if current != nil && !current.Bare {
			entries = append(entries, *current)
		}
		current = nil
	}
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &entry{Path: strings.TrimPrefix(line, "worktree ")}
		case line == "bare" && current != nil:
			current.Bare = true
		case strings.HasPrefix(line, "prunable") && current != nil:
			current.Prunable = true
		case line == "":
			flush()
		}
	}
	// Handle case where output doesn't end with empty line
	flush()
	return entries, nil
}

// head returns the HEAD commit SHA of the working tree at dir.
func head(ctx context.Context, dir string) (string, error) {
	return git(ctx, dir, "rev-parse", "--verify", "HEAD^{commit}")
}

// canonical resolves symlinks in the parent of path and joins the final
// element back, so a path compares equal to git's record of it whether or not
// it exists yet.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}
