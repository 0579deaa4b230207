package worktree

// GitDirKind describes the .git entry found inside an existing local path.
type GitDirKind int

const (
	NoGitDir GitDirKind = iota
	// GitDirFile is a .git file, the mark of a linked worktree.
	GitDirFile
	// GitDirDirectory is a .git directory, the mark of a standalone repository.
	GitDirDirectory
)

// LocalState is what was observed at a dependency's local worktree path.
type LocalState struct {
	Exists bool
	// Symlink is set when the path itself is a symbolic link.
	Symlink bool
	// Registered is set when the cache repository lists the path as one of
	// its worktrees.
	Registered bool
	GitDir     GitDirKind
}

// LocalAction is the step that converges a local path to a worktree of the
// cache repository.
type LocalAction int

const (
	// Create a new worktree; nothing occupies the path.
	Create LocalAction = iota
	// Reuse the registered worktree already at the path.
	Reuse
	// PruneStaleThenCreate drops the repository's registration of a path that
	// no longer exists, then creates.
	PruneStaleThenCreate
	// RemoveStaleThenCreate deletes a registered path that has lost its .git
	// file, drops the registration, then creates.
	RemoveStaleThenCreate
	// PruneForeignThenCreate removes a git working tree that belongs to
	// another repository, including its administrative record, then creates.
	PruneForeignThenCreate
	// RemoveLeftoverThenCreate deletes a path that is not a git working tree,
	// then creates.
	RemoveLeftoverThenCreate
)

func (a LocalAction) String() string {
	switch a {
	case Create:
		return "create"
	case Reuse:
		return "reuse"
	case PruneStaleThenCreate:
		return "prune stale registration, then create"
	case RemoveStaleThenCreate:
		return "remove broken worktree, then create"
	case PruneForeignThenCreate:
		return "prune foreign worktree, then create"
	case RemoveLeftoverThenCreate:
		return "remove leftover directory, then create"
	default:
		return "unknown"
	}
}

// PlanLocal decides how to treat the local path.
func PlanLocal(s LocalState) LocalAction {
	switch {
	case !s.Exists && s.Registered:
		return PruneStaleThenCreate
	case !s.Exists:
		return Create
	case s.Symlink:
		return RemoveLeftoverThenCreate
	case s.Registered && s.GitDir == GitDirFile:
		return Reuse
	case s.Registered:
		return RemoveStaleThenCreate
	case s.GitDir != NoGitDir:
		return PruneForeignThenCreate
	default:
		return RemoveLeftoverThenCreate
	}
}

// NameState is what was observed in the cache repository for the name a new
// worktree is about to take.
type NameState struct {
	// AdminExists is set when the repository already holds worktree metadata
	// under the name.
	AdminExists bool
	// AdminCheckoutExists is set when that metadata's working directory is
	// still on disk.
	AdminCheckoutExists bool
	// BranchExists is set when the repository has a local branch with the
	// worktree's branch name.
	BranchExists bool
}

// NameAction lists what must happen before the worktree can be created.
type NameAction struct {
	// Conflict means the name belongs to a live worktree; creation must not
	// proceed.
	Conflict         bool
	RemoveStaleAdmin bool
	DeleteBranch     bool
}

// PlanName decides how to free the name for a new worktree.
func PlanName(s NameState) NameAction {
	if s.AdminExists && s.AdminCheckoutExists {
		return NameAction{Conflict: true}
	}
	return NameAction{
		RemoveStaleAdmin: s.AdminExists,
		DeleteBranch:     s.BranchExists,
	}
}
