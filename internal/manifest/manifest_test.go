package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutTarget(t *testing.T) {
	assert.Equal(t, "refs/remotes/origin/main", Branch{Name: "main"}.CheckoutTarget())
	assert.Equal(t, "refs/remotes/origin/feature/x", Branch{Name: "feature/x"}.CheckoutTarget())
	assert.Equal(t, "refs/tags/1.0.0", Tag{Name: "1.0.0"}.CheckoutTarget())
	assert.Equal(t, "12f123", Commit{Branch: "main", Hash: "12f123"}.CheckoutTarget())
}

func TestFetchRef(t *testing.T) {
	assert.Equal(t, "main", Branch{Name: "main"}.FetchRef())
	assert.Equal(t, "release", Commit{Branch: "release", Hash: "12f123"}.FetchRef())
	assert.Equal(t, "v2.1", Tag{Name: "v2.1"}.FetchRef())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Branch{Name: "main"}.Validate())
	assert.NoError(t, Tag{Name: "v1.0.0"}.Validate())
	assert.NoError(t, Commit{Branch: "main", Hash: "12f123"}.Validate())

	assert.ErrorIs(t, Branch{Name: "bad..name"}.Validate(), ErrInvalidRef)
	assert.ErrorIs(t, Tag{Name: "has space"}.Validate(), ErrInvalidRef)
	assert.ErrorIs(t, Branch{Name: "ends.lock"}.Validate(), ErrInvalidRef)
	assert.ErrorIs(t, Commit{Branch: "main", Hash: "not-a-hash"}.Validate(), ErrInvalidRef)
	assert.ErrorIs(t, Commit{Branch: "a~b", Hash: "12f123"}.Validate(), ErrInvalidRef)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
dependencies:
  zeta:
    source:
      git_repo: https://github.com/org/zeta.git
      branch: main
  alpha:
    source:
      git_repo: https://github.com/org/alpha
      tag: v1.2.3
    target: vendor/alpha
    links: [web/alpha, docs/alpha]
  mid:
    source:
      git_repo: git@github.com:org/mid.git
      branch: release
      commit: 0123abcd
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, cfg.Names())
	assert.Equal(t, Dependency{
		Source: GitRepository{URL: "https://github.com/org/zeta.git", Ref: Branch{Name: "main"}},
	}, cfg.Dependencies["zeta"])
	assert.Equal(t, Dependency{
		Source: GitRepository{URL: "https://github.com/org/alpha", Ref: Tag{Name: "v1.2.3"}},
		Target: "vendor/alpha",
		Links:  []string{"web/alpha", "docs/alpha"},
	}, cfg.Dependencies["alpha"])
	assert.Equal(t, Commit{Branch: "release", Hash: "0123abcd"},
		cfg.Dependencies["mid"].Source.(GitRepository).Ref)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Names())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "missing repo",
			yaml: "dependencies:\n  foo:\n    source:\n      branch: main\n",
			err:  ErrInvalidManifest,
		},
		{
			name: "no ref",
			yaml: "dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n",
			err:  ErrAmbiguousSource,
		},
		{
			name: "tag and branch",
			yaml: "dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n      branch: main\n      tag: v1\n",
			err:  ErrAmbiguousSource,
		},
		{
			name: "commit without branch",
			yaml: "dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n      commit: abcdef\n",
			err:  ErrAmbiguousSource,
		},
		{
			name: "malformed branch",
			yaml: "dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n      branch: 'a b'\n",
			err:  ErrInvalidRef,
		},
		{
			name: "unknown field",
			yaml: "dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n      branch: main\n    colour: blue\n",
			err:  ErrInvalidManifest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseOverrides(t *testing.T) {
	overrides, err := ParseOverrides([]byte(`
dependencies:
  foo:
    local_path: ../foo
  bar:
    tag: v2
  baz:
    git_repo: https://example.com/fork/baz.git
    branch: wip
    commit: deadbeef
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]DependencyOverride{
		"foo": LocalPathOverride{Path: "../foo"},
		"bar": GitRepositoryOverride{Ref: Tag{Name: "v2"}},
		"baz": GitRepositoryOverride{
			URL: "https://example.com/fork/baz.git",
			Ref: Commit{Branch: "wip", Hash: "deadbeef"},
		},
	}, overrides.Dependencies)
}

func TestParseOverridesRejectsMixed(t *testing.T) {
	_, err := ParseOverrides([]byte("dependencies:\n  foo:\n    local_path: ../foo\n    branch: main\n"))
	assert.ErrorIs(t, err, ErrAmbiguousSource)

	_, err = ParseOverrides([]byte("dependencies:\n  foo:\n    git_repo: https://x.org/a\n"))
	assert.ErrorIs(t, err, ErrAmbiguousSource)
}

func TestLoadOverridesMissingFile(t *testing.T) {
	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dependencies:\n  foo:\n    source:\n      git_repo: https://x.org/a\n      branch: main\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, cfg.Names())

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
