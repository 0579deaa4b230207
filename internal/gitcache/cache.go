// Package gitcache keeps one bare git repository per distinct repository URL
// and fetches refs into it. Entries are keyed by the normalized URL, so every
// dependency and every project referencing the same URL shares one clone.
package gitcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danjacques/gofslock/fslock"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

var (
	ErrUnparsableURL        = errors.New("could not parse url")
	ErrMissingDomain        = errors.New("url has no domain")
	ErrWrongRepoKind        = errors.New("cache entry is not a bare repository")
	ErrCloneFailed          = errors.New("could not clone repository")
	ErrOpenFailed           = errors.New("could not open repository")
	ErrFetchFailed          = errors.New("could not fetch")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrLockFailed           = errors.New("could not lock cache entry")
)

const (
	defaultLockDelay = 2 * time.Second
	anonymousRemote  = "anonymous"
)

// Cache is the global store of bare repositories rooted at Root.
type Cache struct {
	Root        string
	Credentials Credentials

	// Progress, when set, receives the remote's clone and fetch progress.
	Progress io.Writer
	// LockDelay is the wait between attempts to take a held entry lock.
	LockDelay time.Duration
}

// Repository is an open bare repository of the cache.
type Repository struct {
	path string
	repo *git.Repository
}

// Path is the repository's directory, which is also its git dir.
func (r *Repository) Path() string { return r.path }

// PathFor returns where the bare repository for url lives.
func (c *Cache) PathFor(url string) (string, error) {
	rel, err := NormalizeURL(url)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Root, rel), nil
}

// Open returns the bare repository for url, cloning it first when the cache
// has no entry yet. An entry that exists but is not a bare repository is
// reported as ErrWrongRepoKind and left untouched.
func (c *Cache) Open(ctx context.Context, url string) (*Repository, error) {
	path, err := c.PathFor(url)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create git parent dir %s: %w", filepath.Dir(path), err)
	}

	var repo *git.Repository
	if _, err := os.Stat(path); err == nil {
		repo, err = git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		auth, err := c.Credentials.authFor(url)
		if err != nil {
			return nil, err
		}
		repo, err = git.PlainCloneContext(ctx, path, true, &git.CloneOptions{
			URL:      url,
			Auth:     auth,
			Progress: c.Progress,
		})
		if err != nil {
			return nil, classifyRemoteError(fmt.Errorf("%w: %s into %s: %w", ErrCloneFailed, url, path, err), err)
		}
	} else {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	if err := checkBare(path, repo); err != nil {
		return nil, err
	}
	return &Repository{path: path, repo: repo}, nil
}

func checkBare(path string, repo *git.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("%w: %s: reading config: %w", ErrOpenFailed, path, err)
	}
	if !cfg.Core.IsBare {
		return fmt.Errorf("%w: %s has a working tree", ErrWrongRepoKind, path)
	}
	for _, marker := range []string{".git", "commondir"} {
		if _, err := os.Lstat(filepath.Join(path, marker)); err == nil {
			return fmt.Errorf("%w: %s is a linked worktree", ErrWrongRepoKind, path)
		}
	}
	return nil
}

// RefSpec returns the refspec that fetches fetchRef into the local ref that
// checkoutRef expects. Tags land in refs/tags; branches, including the branch
// of a pinned commit, land in refs/remotes/origin.
func RefSpec(fetchRef, checkoutRef string) config.RefSpec {
	if strings.HasPrefix(checkoutRef, "refs/tags/") {
		return config.RefSpec(fmt.Sprintf("+refs/tags/%s:refs/tags/%s", fetchRef, fetchRef))
	}
	return config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", fetchRef, fetchRef))
}

// Fetch fetches refspec from url into r. The remote is anonymous: nothing is
// read from or written to the repository's remote configuration, so a
// changed url takes effect immediately.
func (c *Cache) Fetch(ctx context.Context, r *Repository, url string, refspec config.RefSpec) error {
	auth, err := c.Credentials.authFor(url)
	if err != nil {
		return err
	}
	remote := git.NewRemote(r.repo.Storer, &config.RemoteConfig{
		Name: anonymousRemote,
		URLs: []string{url},
	})
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RemoteName: anonymousRemote,
		RefSpecs:   []config.RefSpec{refspec},
		Auth:       auth,
		Progress:   c.Progress,
		Tags:       git.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classifyRemoteError(fmt.Errorf("%w: %s from %s: %w", ErrFetchFailed, refspec, url, err), err)
	}
	return nil
}

func classifyRemoteError(wrapped, cause error) error {
	if errors.Is(cause, transport.ErrAuthenticationRequired) || errors.Is(cause, transport.ErrAuthorizationFailed) {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, wrapped)
	}
	return wrapped
}

// BranchExists reports whether refs/heads/name exists in r.
func (r *Repository) BranchExists(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteBranch removes refs/heads/name from r.
func (r *Repository) DeleteBranch(name string) error {
	return r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name))
}

// WithLock runs fn while holding the advisory lock of url's cache entry,
// waiting for other holders to release it first.
func (c *Cache) WithLock(ctx context.Context, url string, fn func() error) error {
	rel, err := NormalizeURL(url)
	if err != nil {
		return err
	}
	lockPath := filepath.Join(c.Root, ".locks", rel+".lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}

	var fnErr error
	ran := false
	err = fslock.WithBlocking(lockPath, c.blocker(ctx), func() error {
		ran = true
		fnErr = fn()
		return fnErr
	})
	return lockResult(lockPath, ran, fnErr, err)
}

// lockResult picks the error of a locked run. An error from fn wins; any
// other error came from taking or releasing the lock.
func lockResult(lockPath string, ran bool, fnErr, lockErr error) error {
	if ran && fnErr != nil {
		return fnErr
	}
	if lockErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrLockFailed, lockPath, lockErr)
	}
	return nil
}

func (c *Cache) blocker(ctx context.Context) fslock.Blocker {
	delay := c.LockDelay
	if delay <= 0 {
		delay = defaultLockDelay
	}
	return func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			return nil
		}
	}
}
