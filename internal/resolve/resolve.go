// Package resolve merges a base manifest with user overrides into fully
// specified dependency descriptors. Resolution performs no network access and
// no filesystem mutation; the only I/O is checking that local path overrides
// exist.
package resolve

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leighmcculloch/pkgstrap/internal/manifest"
)

var (
	ErrOverrideConflict     = errors.New("override does not match any dependency")
	ErrMissingRepositoryURL = errors.New("missing repository url")
	ErrInvalidPath          = errors.New("invalid local path")
)

// ResolvedDependency is either a Git or a LocalPath descriptor, ready for
// acquisition without further lookups.
type ResolvedDependency interface {
	isResolved()
}

// Git is a dependency acquired from a git remote.
type Git struct {
	URL         string
	FetchRef    string
	CheckoutRef string
}

// LocalPath is a dependency linked straight from a directory on disk. Path is
// kept as the user wrote it.
type LocalPath struct {
	Path string
}

func (Git) isResolved()       {}
func (LocalPath) isResolved() {}

// FromRef builds the git descriptor for url at ref.
func FromRef(url string, ref manifest.GitRef) Git {
	return Git{
		URL:         url,
		FetchRef:    ref.FetchRef(),
		CheckoutRef: ref.CheckoutTarget(),
	}
}

// Resolver resolves a manifest, optionally with overrides.
type Resolver struct {
	config    *manifest.Config
	overrides *manifest.ConfigOverrides
}

func New(config *manifest.Config) *Resolver {
	return &Resolver{config: config}
}

// WithOverrides sets the overrides applied on top of the manifest. A nil
// value means no overrides.
func (r *Resolver) WithOverrides(overrides *manifest.ConfigOverrides) *Resolver {
	r.overrides = overrides
	return r
}

// ResolveAll resolves every manifest entry. It fails on the first entry that
// cannot be resolved, and when an override names a dependency the manifest
// does not declare.
func (r *Resolver) ResolveAll() (map[string]ResolvedDependency, error) {
	if r.overrides != nil {
		for name := range r.overrides.Dependencies {
			if _, ok := r.config.Dependencies[name]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrOverrideConflict, name)
			}
		}
	}

	out := make(map[string]ResolvedDependency, len(r.config.Dependencies))
	for _, name := range r.config.Names() {
		resolved, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

// Resolve resolves the single dependency name.
func (r *Resolver) Resolve(name string) (ResolvedDependency, error) {
	dep, ok := r.config.Dependencies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOverrideConflict, name)
	}

	var override manifest.DependencyOverride
	if r.overrides != nil {
		override = r.overrides.Dependencies[name]
	}

	switch o := override.(type) {
	case nil:
		return resolveSource(name, dep.Source)
	case manifest.LocalPathOverride:
		if _, err := filepath.EvalSymlinks(o.Path); err != nil {
			return nil, fmt.Errorf("%w: dependency %s: path %s invalid or not supported: %w", ErrInvalidPath, name, o.Path, err)
		}
		return LocalPath{Path: o.Path}, nil
	case manifest.GitRepositoryOverride:
		url := o.URL
		if url == "" && dep.Source != nil {
			url, _ = dep.Source.RepositoryURL()
		}
		if url == "" {
			return nil, fmt.Errorf("%w: override for %s specifies a git ref without a repo url and the manifest does not provide one either", ErrMissingRepositoryURL, name)
		}
		if o.Ref == nil {
			return nil, fmt.Errorf("%w: override %s has no ref", manifest.ErrInvalidRef, name)
		}
		if err := o.Ref.Validate(); err != nil {
			return nil, fmt.Errorf("override %s: %w", name, err)
		}
		return FromRef(url, o.Ref), nil
	default:
		return nil, fmt.Errorf("dependency %s: unsupported override %T", name, override)
	}
}

func resolveSource(name string, source manifest.DependencySource) (ResolvedDependency, error) {
	switch s := source.(type) {
	case manifest.GitRepository:
		if s.URL == "" {
			return nil, fmt.Errorf("%w: dependency %s", ErrMissingRepositoryURL, name)
		}
		if s.Ref == nil {
			return nil, fmt.Errorf("%w: dependency %s has no ref", manifest.ErrInvalidRef, name)
		}
		if err := s.Ref.Validate(); err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}
		return FromRef(s.URL, s.Ref), nil
	default:
		return nil, fmt.Errorf("dependency %s: unsupported source %T", name, source)
	}
}
