package main

// Dependency is the observed state of one manifest dependency
type Dependency struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	URL       string   `json:"url,omitempty"`
	Ref       string   `json:"ref,omitempty"`
	LocalPath string   `json:"local_path,omitempty"`
	Worktree  string   `json:"worktree,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	Targets   []Target `json:"targets"`
}

// Target is one location a dependency is linked into
type Target struct {
	Path   string `json:"path"`
	Linked bool   `json:"linked"`
}

// State represents every dependency of the manifest, in manifest order
type State struct {
	Dependencies []Dependency `json:"dependencies"`
}

const (
	kindGit       = "git"
	kindLocalPath = "local_path"
)
