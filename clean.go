package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leighmcculloch/pkgstrap/internal/acquire"
	"github.com/leighmcculloch/pkgstrap/internal/resolve"
	"github.com/leighmcculloch/pkgstrap/internal/worktree"
)

var errCleanIncomplete = errors.New("some dependencies could not be cleaned")

// clean removes the links and worktree of every dependency, continuing past
// failures
func clean(ctx context.Context, p *project, stderr io.Writer, verbose bool) error {
	failed := 0
	for _, name := range p.config.Names() {
		if err := cleanOne(ctx, p, name, stderr, verbose); err != nil {
			fmt.Fprintf(stderr, "error: %s: %v\n", name, err)
			failed++
			// Continue with other dependencies
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d failed", errCleanIncomplete, failed)
	}
	return nil
}

func cleanOne(ctx context.Context, p *project, name string, stderr io.Writer, verbose bool) error {
	dirs := p.dirs.For(name, p.config.Dependencies[name])
	fmt.Fprintf(stderr, "cleaning %s\n", name)

	for _, target := range dirs.Targets() {
		if verbose {
			fmt.Fprintf(stderr, "  removing link %s\n", target)
		}
		if err := acquire.RemoveSymlink(target); err != nil {
			return err
		}
	}

	g, ok := p.resolved[name].(resolve.Git)
	if !ok {
		return removeWorktree(ctx, p, nil, dirs, stderr, verbose)
	}
	return p.acquirer.Cache.WithLock(ctx, g.URL, func() error {
		repo, err := openExisting(ctx, p, g.URL)
		if err != nil {
			return err
		}
		return removeWorktree(ctx, p, repo, dirs, stderr, verbose)
	})
}

// openExisting opens the cache entry for url without cloning it. A missing
// entry yields a nil repository.
func openExisting(ctx context.Context, p *project, url string) (worktree.Repository, error) {
	path, err := p.acquirer.Cache.PathFor(url)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	repo, err := p.acquirer.Cache.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func removeWorktree(ctx context.Context, p *project, repo worktree.Repository, dirs acquire.DependencyDirs, stderr io.Writer, verbose bool) error {
	if _, err := os.Lstat(dirs.Worktree); os.IsNotExist(err) {
		return nil
	}
	if verbose {
		fmt.Fprintf(stderr, "  removing worktree %s\n", dirs.Worktree)
	}
	return p.acquirer.Worktrees.Remove(ctx, repo, dirs.Worktree)
}
