package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type rawRef struct {
	Branch string `yaml:"branch"`
	Tag    string `yaml:"tag"`
	Commit string `yaml:"commit"`
}

type rawSource struct {
	GitRepo string `yaml:"git_repo"`
	Ref     rawRef `yaml:",inline"`
}

type rawDependency struct {
	Source rawSource `yaml:"source"`
	Target string    `yaml:"target"`
	Links  []string  `yaml:"links"`
}

type rawConfig struct {
	Dependencies map[string]rawDependency `yaml:"dependencies"`
}

type rawOverride struct {
	LocalPath string `yaml:"local_path"`
	GitRepo   string `yaml:"git_repo"`
	Ref       rawRef `yaml:",inline"`
}

type rawOverrides struct {
	Dependencies map[string]rawOverride `yaml:"dependencies"`
}

func (r rawRef) empty() bool {
	return r.Branch == "" && r.Tag == "" && r.Commit == ""
}

// gitRef classifies the untagged ref fields into exactly one GitRef variant.
func (r rawRef) gitRef() (GitRef, error) {
	var ref GitRef
	switch {
	case r.Branch != "" && r.Commit != "" && r.Tag == "":
		ref = Commit{Branch: r.Branch, Hash: r.Commit}
	case r.Tag != "" && r.Branch == "" && r.Commit == "":
		ref = Tag{Name: r.Tag}
	case r.Branch != "" && r.Tag == "" && r.Commit == "":
		ref = Branch{Name: r.Branch}
	default:
		return nil, fmt.Errorf("%w: expected one of branch, tag, or branch with commit (got branch=%q tag=%q commit=%q)",
			ErrAmbiguousSource, r.Branch, r.Tag, r.Commit)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// dependencyOrder returns the keys of the top level dependencies mapping in
// the order they appear in the document.
func dependencyOrder(data []byte) ([]string, error) {
	var doc struct {
		Dependencies yaml.Node `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	node := doc.Dependencies
	if node.Kind != yaml.MappingNode {
		return nil, nil
	}
	names := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		names = append(names, node.Content[i].Value)
	}
	return names, nil
}

// Parse decodes a base manifest.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := decodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	order, err := dependencyOrder(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	cfg := &Config{
		Dependencies: make(map[string]Dependency, len(raw.Dependencies)),
		order:        order,
	}
	for name, rd := range raw.Dependencies {
		if name == "" {
			return nil, fmt.Errorf("%w: empty dependency name", ErrInvalidManifest)
		}
		if rd.Source.GitRepo == "" {
			return nil, fmt.Errorf("%w: dependency %s: source has no git_repo", ErrInvalidManifest, name)
		}
		ref, err := rd.Source.Ref.gitRef()
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}
		cfg.Dependencies[name] = Dependency{
			Source: GitRepository{URL: rd.Source.GitRepo, Ref: ref},
			Target: rd.Target,
			Links:  rd.Links,
		}
	}
	return cfg, nil
}

// ParseOverrides decodes an override manifest.
func ParseOverrides(data []byte) (*ConfigOverrides, error) {
	var raw rawOverrides
	if err := decodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	overrides := &ConfigOverrides{
		Dependencies: make(map[string]DependencyOverride, len(raw.Dependencies)),
	}
	for name, ro := range raw.Dependencies {
		switch {
		case ro.LocalPath != "" && ro.GitRepo == "" && ro.Ref.empty():
			overrides.Dependencies[name] = LocalPathOverride{Path: ro.LocalPath}
		case ro.LocalPath == "" && !ro.Ref.empty():
			ref, err := ro.Ref.gitRef()
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", name, err)
			}
			overrides.Dependencies[name] = GitRepositoryOverride{URL: ro.GitRepo, Ref: ref}
		case ro.LocalPath != "":
			return nil, fmt.Errorf("%w: override %s mixes local_path with git fields", ErrAmbiguousSource, name)
		default:
			return nil, fmt.Errorf("%w: override %s has neither local_path nor a git ref", ErrAmbiguousSource, name)
		}
	}
	return overrides, nil
}

// Load reads and parses the base manifest at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOverrides reads and parses the override manifest at path. A missing
// file is not an error and yields nil overrides.
func LoadOverrides(path string) (*ConfigOverrides, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	overrides, err := ParseOverrides(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return overrides, nil
}
