// Package gittest builds throwaway git remotes for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Setup points HOME at a fresh directory with a git identity configured, so
// tests neither read nor write the user's git configuration.
func Setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	Git(t, home, "config", "--global", "user.email", "tests@example.com")
	Git(t, home, "config", "--global", "user.name", "Tests")
	Git(t, home, "config", "--global", "init.defaultBranch", "main")
	return home
}

// Git runs git in dir and returns its trimmed stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if ee, ok := err.(*exec.ExitError); ok {
		require.NoError(t, err, "git %s: %s", strings.Join(args, " "), ee.Stderr)
	}
	require.NoError(t, err, "git %s", strings.Join(args, " "))
	return strings.TrimSpace(string(out))
}

// Remote is a bare repository with a scratch clone used to push to it.
type Remote struct {
	t       *testing.T
	Path    string
	scratch string
}

// NewRemote creates a bare remote whose main branch holds one commit.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	root := t.TempDir()
	r := &Remote{
		t:       t,
		Path:    filepath.Join(root, "remote.git"),
		scratch: filepath.Join(root, "scratch"),
	}
	Git(t, root, "init", "--bare", r.Path)
	Git(t, root, "init", r.scratch)
	Git(t, r.scratch, "remote", "add", "origin", r.Path)
	r.Commit("README", "initial")
	return r
}

// URL is the address of the remote. It carries a host so that it can be
// normalized into a cache path.
func (r *Remote) URL() string {
	return "file://localhost" + filepath.ToSlash(r.Path)
}

// Commit writes content to file on the scratch clone's current branch, pushes
// it, and returns the new commit hash.
func (r *Remote) Commit(file, content string) string {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.scratch, file), []byte(content), 0o644))
	Git(r.t, r.scratch, "add", ".")
	Git(r.t, r.scratch, "commit", "-m", "update "+file)
	branch := Git(r.t, r.scratch, "rev-parse", "--abbrev-ref", "HEAD")
	Git(r.t, r.scratch, "push", "origin", branch)
	return Git(r.t, r.scratch, "rev-parse", "HEAD")
}

// Branch creates branch from the current commit, switches to it and pushes
// it.
func (r *Remote) Branch(name string) {
	r.t.Helper()
	Git(r.t, r.scratch, "checkout", "-b", name)
	Git(r.t, r.scratch, "push", "origin", name)
}

// Switch checks out an existing branch of the scratch clone.
func (r *Remote) Switch(name string) {
	r.t.Helper()
	Git(r.t, r.scratch, "checkout", name)
}

// Tag tags the current commit and pushes the tag.
func (r *Remote) Tag(name string) {
	r.t.Helper()
	Git(r.t, r.scratch, "tag", name)
	Git(r.t, r.scratch, "push", "origin", name)
}
