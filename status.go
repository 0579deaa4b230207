package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leighmcculloch/pkgstrap/internal/acquire"
	"github.com/leighmcculloch/pkgstrap/internal/resolve"
	"github.com/leighmcculloch/pkgstrap/internal/worktree"
)

// status reports the state of every dependency without changing anything
func status(ctx context.Context, p *project, stderr io.Writer, verbose bool) (*State, error) {
	state := &State{
		Dependencies: make([]Dependency, 0, len(p.resolved)),
	}

	for _, name := range p.config.Names() {
		if verbose {
			fmt.Fprintf(stderr, "inspecting %s\n", name)
		}
		dirs := p.dirs.For(name, p.config.Dependencies[name])
		dep := Dependency{Name: name}

		var source string
		switch d := p.resolved[name].(type) {
		case resolve.Git:
			dep.Kind = kindGit
			dep.URL = d.URL
			dep.Ref = d.CheckoutRef
			dep.Worktree = dirs.Worktree
			source = dirs.Worktree

			commit, err := worktreeHead(ctx, dirs.Worktree)
			if err != nil {
				fmt.Fprintf(stderr, "warning: %s: %v\n", name, err)
			}
			dep.Commit = commit
		case resolve.LocalPath:
			dep.Kind = kindLocalPath
			dep.LocalPath = d.Path
			source = d.Path
		}

		for _, target := range dirs.Targets() {
			linked := acquire.LinksTo(target, source)
			if verbose {
				fmt.Fprintf(stderr, "  %s linked: %t\n", target, linked)
			}
			dep.Targets = append(dep.Targets, Target{Path: target, Linked: linked})
		}
		state.Dependencies = append(state.Dependencies, dep)
	}

	if verbose {
		fmt.Fprintf(stderr, "found %d dependencies\n", len(state.Dependencies))
	}
	return state, nil
}

// worktreeHead returns the commit checked out at path, or "" when nothing has
// been checked out there yet.
func worktreeHead(ctx context.Context, path string) (string, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a worktree", path)
	}
	if gfi, err := os.Lstat(filepath.Join(path, ".git")); err != nil || gfi.IsDir() {
		return "", fmt.Errorf("%s is not a worktree", path)
	}
	return (&worktree.Worktree{Path: path}).Head(ctx)
}
