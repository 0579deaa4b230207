// Package manifest holds the declared dependency model of a pkgstrap project:
// the base manifest, the per-user overrides, and the git ref codec shared by
// both.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrAmbiguousSource = errors.New("ambiguous dependency source")
	ErrInvalidRef      = errors.New("invalid git ref")
)

// remoteTrackingPrefix is where fetched branches are stored in the cache
// repository.
const remoteTrackingPrefix = "refs/remotes/origin/"

// GitRef is a symbolic reference to a point in a remote repository's history.
// It is one of Branch, Tag or Commit.
type GitRef interface {
	// FetchRef is the name requested from the remote.
	FetchRef() string
	// CheckoutTarget is the local ref or commit hash switched to after the
	// fetch.
	CheckoutTarget() string
	// Validate reports whether the ref produces well formed git names.
	Validate() error

	isGitRef()
}

// Branch follows the tip of a remote branch.
type Branch struct {
	Name string
}

// Tag pins a remote tag.
type Tag struct {
	Name string
}

// Commit pins a commit. Branch names a remote branch the commit is reachable
// from, since a fetch needs a ref name rather than a bare hash.
type Commit struct {
	Branch string
	Hash   string
}

func (b Branch) FetchRef() string       { return b.Name }
func (b Branch) CheckoutTarget() string { return remoteTrackingPrefix + b.Name }
func (b Branch) Validate() error        { return validateRefName(b.CheckoutTarget()) }
func (Branch) isGitRef()                {}

func (t Tag) FetchRef() string       { return t.Name }
func (t Tag) CheckoutTarget() string { return "refs/tags/" + t.Name }
func (t Tag) Validate() error        { return validateRefName(t.CheckoutTarget()) }
func (Tag) isGitRef()                {}

func (c Commit) FetchRef() string       { return c.Branch }
func (c Commit) CheckoutTarget() string { return c.Hash }
func (Commit) isGitRef()                {}

func (c Commit) Validate() error {
	if err := validateRefName(remoteTrackingPrefix + c.Branch); err != nil {
		return err
	}
	if !isHex(c.Hash) {
		return fmt.Errorf("%w: commit %q is not a hexadecimal object name", ErrInvalidRef, c.Hash)
	}
	return nil
}

func (b Branch) String() string { return "branch " + b.Name }
func (t Tag) String() string    { return "tag " + t.Name }
func (c Commit) String() string { return fmt.Sprintf("commit %s on branch %s", c.Hash, c.Branch) }

func validateRefName(name string) error {
	if err := plumbing.ReferenceName(name).Validate(); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidRef, name, err)
	}
	return nil
}

func isHex(s string) bool {
	if len(s) < 4 || len(s) > 64 {
		return false
	}
	return strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}

// DependencySource is the declared origin of a dependency. GitRepository is
// the only variant.
type DependencySource interface {
	// RepositoryURL returns the declared repository URL, if the source has one.
	RepositoryURL() (string, bool)

	isDependencySource()
}

// GitRepository is a dependency fetched from a git remote.
type GitRepository struct {
	URL string
	Ref GitRef
}

func (g GitRepository) RepositoryURL() (string, bool) { return g.URL, g.URL != "" }
func (GitRepository) isDependencySource()             {}

// Dependency is one manifest entry.
type Dependency struct {
	Source DependencySource
	// Target replaces the default <deps dir>/<name> location when set.
	Target string
	// Links are additional in-tree locations mirroring the target.
	Links []string
}

// Config is the parsed base manifest.
type Config struct {
	Dependencies map[string]Dependency

	order []string
}

// Names returns the dependency names in declaration order. Configs built in
// code without an explicit order fall back to lexical order.
func (c *Config) Names() []string {
	if len(c.order) == len(c.Dependencies) {
		out := make([]string, len(c.order))
		copy(out, c.order)
		return out
	}
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DependencyOverride replaces how a single dependency is obtained. It is one
// of LocalPathOverride or GitRepositoryOverride.
type DependencyOverride interface {
	isDependencyOverride()
}

// LocalPathOverride redirects a dependency to a directory on disk, bypassing
// git entirely.
type LocalPathOverride struct {
	Path string
}

// GitRepositoryOverride replaces the ref of a dependency, and optionally its
// URL. An empty URL inherits the base manifest's URL. The ref is never merged
// with the base ref.
type GitRepositoryOverride struct {
	URL string
	Ref GitRef
}

func (LocalPathOverride) isDependencyOverride()     {}
func (GitRepositoryOverride) isDependencyOverride() {}

// ConfigOverrides is the parsed override manifest, keyed by dependency name.
type ConfigOverrides struct {
	Dependencies map[string]DependencyOverride
}
