package acquire

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leighmcculloch/pkgstrap/internal/gitcache"
	"github.com/leighmcculloch/pkgstrap/internal/gittest"
	"github.com/leighmcculloch/pkgstrap/internal/manifest"
	"github.com/leighmcculloch/pkgstrap/internal/resolve"
	"github.com/leighmcculloch/pkgstrap/internal/worktree"
)

type env struct {
	ctx      context.Context
	project  string
	dirs     Directories
	acquirer *Acquirer
	remote   *gittest.Remote
}

func newEnv(t *testing.T) *env {
	gittest.Setup(t)
	project := t.TempDir()
	dirs := DefaultDirectories(
		filepath.Join(project, ".pkgstrap"),
		filepath.Join(project, "deps"),
		filepath.Join(t.TempDir(), "cache"),
	)
	for _, dir := range dirs.All() {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return &env{
		ctx:     context.Background(),
		project: project,
		dirs:    dirs,
		acquirer: &Acquirer{
			Cache:     &gitcache.Cache{Root: dirs.Cache, LockDelay: 10 * time.Millisecond},
			Worktrees: &worktree.Manager{},
		},
		remote: gittest.NewRemote(t),
	}
}

func (e *env) acquire(t *testing.T, name string, dep manifest.Dependency, resolved resolve.ResolvedDependency) (*CommitTransition, DependencyDirs) {
	t.Helper()
	dd := e.dirs.For(name, dep)
	transition, err := e.acquirer.Acquire(e.ctx, resolved, dd)
	require.NoError(t, err)
	return transition, dd
}

func TestAcquireBranchFirstAndSecondRun(t *testing.T) {
	e := newEnv(t)
	head := gittest.Git(t, e.remote.Path, "rev-parse", "main")
	dep := manifest.Dependency{Source: manifest.GitRepository{URL: e.remote.URL(), Ref: manifest.Branch{Name: "main"}}}
	resolved := resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"})

	first, dd := e.acquire(t, "foo", dep, resolved)
	assert.True(t, first.Updated())
	assert.Equal(t, "", first.Before)
	assert.Equal(t, head, first.After)
	assert.True(t, LinksTo(dd.Target, dd.Worktree))
	assert.FileExists(t, filepath.Join(dd.Target, "README"))

	cachePath, err := e.acquirer.Cache.PathFor(e.remote.URL())
	require.NoError(t, err)
	assert.DirExists(t, cachePath)

	second, _ := e.acquire(t, "foo", dep, resolved)
	assert.False(t, second.Updated())
	assert.Equal(t, head, second.Before)
	assert.Equal(t, head, second.After)
}

func TestAcquireFollowsUpstream(t *testing.T) {
	e := newEnv(t)
	dep := manifest.Dependency{Source: manifest.GitRepository{URL: e.remote.URL(), Ref: manifest.Branch{Name: "main"}}}
	resolved := resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"})

	first, dd := e.acquire(t, "foo", dep, resolved)
	next := e.remote.Commit("CHANGELOG", "v2")

	second, _ := e.acquire(t, "foo", dep, resolved)
	assert.True(t, second.Updated())
	assert.Equal(t, first.After, second.Before)
	assert.Equal(t, next, second.After)
	assert.FileExists(t, filepath.Join(dd.Target, "CHANGELOG"))
}

func TestAcquireDiscardsLocalEdits(t *testing.T) {
	e := newEnv(t)
	dep := manifest.Dependency{}
	resolved := resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"})

	_, dd := e.acquire(t, "foo", dep, resolved)
	require.NoError(t, os.WriteFile(filepath.Join(dd.Worktree, "README"), []byte("edited"), 0o644))

	_, _ = e.acquire(t, "foo", dep, resolved)
	data, err := os.ReadFile(filepath.Join(dd.Target, "README"))
	require.NoError(t, err)
	assert.Equal(t, "initial", string(data))
}

func TestAcquireNeverTouchesEnclosingProject(t *testing.T) {
	e := newEnv(t)
	gittest.Git(t, e.project, "init")
	gittest.Git(t, e.project, "remote", "add", "origin", e.remote.Path)
	gittest.Git(t, e.project, "fetch", "origin")
	gittest.Git(t, e.project, "checkout", "-b", "main", "origin/main")
	require.NoError(t, os.WriteFile(filepath.Join(e.project, "README"), []byte("user edits"), 0o644))

	dep := manifest.Dependency{}
	resolved := resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"})
	_, dd := e.acquire(t, "foo", dep, resolved)

	// A worktree that lost its .git file must not resolve to the project.
	require.NoError(t, os.Remove(filepath.Join(dd.Worktree, ".git")))
	transition, _ := e.acquire(t, "foo", dep, resolved)
	assert.True(t, transition.Updated())
	assert.Equal(t, "", transition.Before)
	assert.FileExists(t, filepath.Join(dd.Worktree, ".git"))

	data, err := os.ReadFile(filepath.Join(e.project, "README"))
	require.NoError(t, err)
	assert.Equal(t, "user edits", string(data))
}

func TestAcquireTagAndCommit(t *testing.T) {
	e := newEnv(t)
	tagged := gittest.Git(t, e.remote.Path, "rev-parse", "main")
	e.remote.Tag("v1")
	e.remote.Branch("dev")
	pinned := e.remote.Commit("dev-file", "dev")
	e.remote.Commit("dev-file", "later")

	tr, _ := e.acquire(t, "tagged", manifest.Dependency{}, resolve.FromRef(e.remote.URL(), manifest.Tag{Name: "v1"}))
	assert.Equal(t, tagged, tr.After)

	tr, dd := e.acquire(t, "pinned", manifest.Dependency{}, resolve.FromRef(e.remote.URL(), manifest.Commit{Branch: "dev", Hash: pinned}))
	assert.Equal(t, pinned, tr.After)
	data, err := os.ReadFile(filepath.Join(dd.Target, "dev-file"))
	require.NoError(t, err)
	assert.Equal(t, "dev", string(data))
}

func TestAcquireSharesCacheBetweenDependencies(t *testing.T) {
	e := newEnv(t)
	resolved := resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"})

	_, a := e.acquire(t, "a", manifest.Dependency{}, resolved)
	_, b := e.acquire(t, "b", manifest.Dependency{}, resolved)
	assert.NotEqual(t, a.Worktree, b.Worktree)

	entries, err := os.ReadDir(filepath.Join(e.dirs.Cache, "localhost"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAcquireInTreeTargets(t *testing.T) {
	e := newEnv(t)
	inTree := filepath.Join(t.TempDir(), "web", "foo")
	dep := manifest.Dependency{Links: []string{inTree}}

	_, dd := e.acquire(t, "foo", dep, resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"}))
	assert.True(t, LinksTo(dd.Target, dd.Worktree))
	assert.True(t, LinksTo(inTree, dd.Worktree))
}

func TestAcquireLocalPath(t *testing.T) {
	e := newEnv(t)
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "marker"), []byte("x"), 0o644))

	transition, dd := e.acquire(t, "foo", manifest.Dependency{}, resolve.LocalPath{Path: local})
	assert.Nil(t, transition)
	assert.True(t, LinksTo(dd.Target, local))
	assert.FileExists(t, filepath.Join(dd.Target, "marker"))

	entries, err := os.ReadDir(e.dirs.Cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "local paths never touch the cache")
}

func TestAcquireReplacesStaleTargetLink(t *testing.T) {
	e := newEnv(t)
	dep := manifest.Dependency{}
	dd := e.dirs.For("foo", dep)
	require.NoError(t, os.Symlink(t.TempDir(), dd.Target))

	_, dd = e.acquire(t, "foo", dep, resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "main"}))
	assert.True(t, LinksTo(dd.Target, dd.Worktree))
}

func TestAcquireRefusesRealTargetDirectory(t *testing.T) {
	e := newEnv(t)
	dd := e.dirs.For("foo", manifest.Dependency{})
	require.NoError(t, os.MkdirAll(dd.Target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dd.Target, "mine"), []byte("x"), 0o644))

	_, err := e.acquirer.Acquire(e.ctx, resolve.LocalPath{Path: t.TempDir()}, dd)
	assert.ErrorIs(t, err, ErrPathConflict)
	assert.FileExists(t, filepath.Join(dd.Target, "mine"))
}

func TestAcquireUnknownBranch(t *testing.T) {
	e := newEnv(t)
	dd := e.dirs.For("foo", manifest.Dependency{})

	_, err := e.acquirer.Acquire(e.ctx, resolve.FromRef(e.remote.URL(), manifest.Branch{Name: "missing"}), dd)
	assert.ErrorIs(t, err, gitcache.ErrFetchFailed)
	assert.NoFileExists(t, dd.Target)
}

func TestDirectoriesFor(t *testing.T) {
	dirs := DefaultDirectories(".pkgstrap", "deps", "/cache")
	assert.Equal(t, filepath.Join(".pkgstrap", "git"), dirs.Worktrees)

	dd := dirs.For("foo", manifest.Dependency{})
	assert.Equal(t, filepath.Join("deps", "foo"), dd.Target)
	assert.Equal(t, filepath.Join(".pkgstrap", "git", "foo"), dd.Worktree)
	assert.Equal(t, []string{filepath.Join("deps", "foo")}, dd.Targets())

	dd = dirs.For("foo", manifest.Dependency{Target: "vendor/foo", Links: []string{"web/foo"}})
	assert.Equal(t, []string{"vendor/foo", "web/foo"}, dd.Targets())
}
