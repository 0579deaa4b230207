package main

import (
	"context"
	"fmt"
	"io"

	"github.com/leighmcculloch/pkgstrap/internal/resolve"
)

// syncAll acquires every dependency in manifest order, stopping at the first
// failure.
func syncAll(ctx context.Context, p *project, stderr io.Writer, verbose bool) error {
	names := p.config.Names()
	if verbose {
		fmt.Fprintf(stderr, "found %d dependencies to sync\n", len(names))
	}
	for _, name := range names {
		if err := syncOne(ctx, p, name, stderr, verbose); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func syncOne(ctx context.Context, p *project, name string, stderr io.Writer, verbose bool) error {
	dep := p.resolved[name]
	dirs := p.dirs.For(name, p.config.Dependencies[name])

	fmt.Fprintf(stderr, "syncing %s\n", name)
	if verbose {
		if g, ok := dep.(resolve.Git); ok {
			fmt.Fprintf(stderr, "  fetching %s from %s\n", g.FetchRef, g.URL)
		}
	}

	transition, err := p.acquirer.Acquire(ctx, dep, dirs)
	if err != nil {
		return err
	}

	switch d := dep.(type) {
	case resolve.Git:
		switch {
		case !transition.Updated():
			fmt.Fprintf(stderr, "  at commit %s\n", transition.After)
		case transition.Before == "":
			fmt.Fprintf(stderr, "  updated to commit %s (from none)\n", transition.After)
		default:
			fmt.Fprintf(stderr, "  updated to commit %s (from %s)\n", transition.After, transition.Before)
		}
	case resolve.LocalPath:
		fmt.Fprintf(stderr, "  linked to %s\n", d.Path)
	}
	if verbose {
		for _, target := range dirs.Targets() {
			fmt.Fprintf(stderr, "  target %s\n", target)
		}
	}
	return nil
}
