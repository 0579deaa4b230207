package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/leighmcculloch/pkgstrap/internal/acquire"
	"github.com/leighmcculloch/pkgstrap/internal/gitcache"
	"github.com/leighmcculloch/pkgstrap/internal/manifest"
	"github.com/leighmcculloch/pkgstrap/internal/resolve"
	"github.com/leighmcculloch/pkgstrap/internal/worktree"
)

const (
	envCacheDir = "PKGSTRAP_CACHE_DIR"
	envSSHKey   = "PKGSTRAP_SSH_KEY"
	envSSHUser  = "PKGSTRAP_SSH_USER"
)

type options struct {
	verbose       bool
	manifestPath  string
	overridesPath string
	stateDir      string
	depsDir       string
	cacheDir      string
}

// project is a loaded manifest with everything needed to act on it.
type project struct {
	config   *manifest.Config
	resolved map[string]resolve.ResolvedDependency
	dirs     acquire.Directories
	acquirer *acquire.Acquirer
}

// cacheRoot picks the cache directory from the flag, then the environment,
// then the user's cache dir.
func cacheRoot(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(envCacheDir); env != "" {
		return env
	}
	return filepath.Join(xdg.CacheHome, "pkgstrap", "repos")
}

func credentials() gitcache.Credentials {
	creds := gitcache.DefaultCredentials(".")
	if key := os.Getenv(envSSHKey); key != "" {
		creds.KeyPath = key
	}
	if user := os.Getenv(envSSHUser); user != "" {
		creds.User = user
	}
	return creds
}

// directories lays out the project's roots as absolute paths.
func directories(opts options) (acquire.Directories, error) {
	paths := []string{opts.stateDir, opts.depsDir, cacheRoot(opts.cacheDir)}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return acquire.Directories{}, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		paths[i] = abs
	}
	return acquire.DefaultDirectories(paths[0], paths[1], paths[2]), nil
}

// load reads the manifest and overrides, resolves them and creates the root
// directories.
func load(opts options, stderr io.Writer) (*project, error) {
	if opts.verbose {
		fmt.Fprintf(stderr, "reading manifest %s\n", opts.manifestPath)
	}
	config, err := manifest.Load(opts.manifestPath)
	if err != nil {
		return nil, err
	}
	overrides, err := manifest.LoadOverrides(opts.overridesPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		if overrides == nil {
			fmt.Fprintf(stderr, "no overrides at %s\n", opts.overridesPath)
		} else {
			fmt.Fprintf(stderr, "applying %d overrides from %s\n", len(overrides.Dependencies), opts.overridesPath)
		}
	}

	resolved, err := resolve.New(config).WithOverrides(overrides).ResolveAll()
	if err != nil {
		return nil, err
	}

	dirs, err := directories(opts)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs.All() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "using cache %s\n", dirs.Cache)
	}

	cache := &gitcache.Cache{
		Root:        dirs.Cache,
		Credentials: credentials(),
	}
	if opts.verbose {
		cache.Progress = stderr
	}

	return &project{
		config:   config,
		resolved: resolved,
		dirs:     dirs,
		acquirer: &acquire.Acquirer{
			Cache:     cache,
			Worktrees: &worktree.Manager{},
		},
	}, nil
}
