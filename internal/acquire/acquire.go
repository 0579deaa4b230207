// Package acquire materializes resolved dependencies on disk: git
// dependencies are fetched into the shared cache and checked out in the
// dependency's own worktree, and every dependency is then linked into its
// target locations.
package acquire

import (
	"context"
	"errors"
	"fmt"

	"github.com/leighmcculloch/pkgstrap/internal/gitcache"
	"github.com/leighmcculloch/pkgstrap/internal/resolve"
	"github.com/leighmcculloch/pkgstrap/internal/worktree"
)

var ErrCheckoutFailed = errors.New("checkout failed")

// CommitTransition is the worktree HEAD before and after a checkout. Before
// is empty for a worktree created by the checkout.
type CommitTransition struct {
	Before string
	After  string
}

// Updated reports whether the checkout moved HEAD.
func (c CommitTransition) Updated() bool {
	return c.Before != c.After
}

// Acquirer runs the checkout protocol.
type Acquirer struct {
	Cache     *gitcache.Cache
	Worktrees *worktree.Manager
}

// Acquire materializes dep and links it into every target of dirs. For git
// dependencies it returns the commit transition of the dependency's
// worktree; for local paths the transition is nil.
func (a *Acquirer) Acquire(ctx context.Context, dep resolve.ResolvedDependency, dirs DependencyDirs) (*CommitTransition, error) {
	var source string
	var transition *CommitTransition

	switch d := dep.(type) {
	case resolve.Git:
		var wt *worktree.Worktree
		err := a.Cache.WithLock(ctx, d.URL, func() error {
			var err error
			wt, transition, err = a.checkout(ctx, d, dirs)
			return err
		})
		if err != nil {
			return nil, err
		}
		source = wt.Path
	case resolve.LocalPath:
		source = d.Path
	default:
		return nil, fmt.Errorf("unsupported dependency %T", dep)
	}

	for _, target := range dirs.Targets() {
		if err := EnsureSymlink(target, source); err != nil {
			return nil, err
		}
	}
	return transition, nil
}

func (a *Acquirer) checkout(ctx context.Context, d resolve.Git, dirs DependencyDirs) (*worktree.Worktree, *CommitTransition, error) {
	repo, err := a.Cache.Open(ctx, d.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Cache.Fetch(ctx, repo, d.URL, gitcache.RefSpec(d.FetchRef, d.CheckoutRef)); err != nil {
		return nil, nil, err
	}
	wt, err := a.Worktrees.Ensure(ctx, repo, dirs.Worktree, d.CheckoutRef)
	if err != nil {
		return nil, nil, err
	}

	var transition CommitTransition
	if !wt.Created {
		transition.Before, err = wt.Head(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: reading HEAD of %s: %w", ErrCheckoutFailed, wt.Path, err)
		}
	}
	if err := wt.ForceCheckout(ctx, d.CheckoutRef); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}
	transition.After, err = wt.Head(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading HEAD of %s: %w", ErrCheckoutFailed, wt.Path, err)
	}
	return wt, &transition, nil
}
