package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// ManifestFilename is the per-service dependency manifest name.
const ManifestFilename = "requirements.txt"

var (
	// ErrRevisionNotFound is returned when a revision cannot be resolved to a commit.
	ErrRevisionNotFound = errors.New("revision not found")
	// ErrFileAbsent is returned when a path does not exist at a revision.
	// Expected for manifests added or removed between revisions.
	ErrFileAbsent = errors.New("file absent at revision")
	// ErrDirtyWorktree is returned by the cleanliness preflight check.
	ErrDirtyWorktree = errors.New("working tree has uncommitted changes")
)

// Repository wraps a go-git repository rooted at the project top level.
type Repository struct {
	repo *git.Repository
	root string
}

// Snapshot is an immutable view of the source tree at a resolved revision.
type Snapshot struct {
	// Name is the revision identifier as provided by the caller.
	Name string
	// Hash is the resolved commit hash.
	Hash string

	tree *object.Tree
}

// FileDiff describes tree changes between two snapshots.
type FileDiff struct {
	// AddOrUpdate lists paths added, modified or renamed-to in the new snapshot.
	AddOrUpdate []string
	// Deleted lists paths removed in the new snapshot (including rename sources).
	// These never enter the archive; they are recorded in delete.list.
	Deleted []string
}

// Open locates the repository by walking upwards from startDir until a .git
// directory is found, and opens it.
func Open(startDir string) (*Repository, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolve start directory: %w", err)
	}

	root := abs
	for {
		if info, statErr := os.Stat(filepath.Join(root, ".git")); statErr == nil && info.IsDir() {
			break
		}

		parent := filepath.Dir(root)
		if parent == root {
			return nil, fmt.Errorf("no .git directory above %s: %w", abs, git.ErrRepositoryNotExists)
		}

		root = parent
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", root, err)
	}

	return &Repository{repo: repo, root: root}, nil
}

// Root returns the absolute path of the repository top level.
func (r *Repository) Root() string {
	return r.root
}

// Resolve resolves a revision identifier (branch, tag or commit hash) to a snapshot.
func (r *Repository) Resolve(rev string) (*Snapshot, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rev, ErrRevisionNotFound)
	}

	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rev, ErrRevisionNotFound)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", rev, err)
	}

	return &Snapshot{
		Name: rev,
		Hash: commit.Hash.String(),
		tree: tree,
	}, nil
}

// Diff computes the file-level changes between two snapshots.
// Renames count as delete-of-old plus add-of-new, matching how the generated
// installer applies updates (additive sync plus an explicit delete list).
func (r *Repository) Diff(old, updated *Snapshot) (*FileDiff, error) {
	changes, err := old.tree.Diff(updated.tree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	diff := new(FileDiff)

	for _, change := range changes {
		action, actionErr := change.Action()
		if actionErr != nil {
			return nil, fmt.Errorf("change action: %w", actionErr)
		}

		switch action {
		case merkletrie.Insert:
			diff.AddOrUpdate = append(diff.AddOrUpdate, change.To.Name)
		case merkletrie.Delete:
			diff.Deleted = append(diff.Deleted, change.From.Name)
		case merkletrie.Modify:
			if change.From.Name != change.To.Name {
				diff.Deleted = append(diff.Deleted, change.From.Name)
			}

			diff.AddOrUpdate = append(diff.AddOrUpdate, change.To.Name)
		}
	}

	sort.Strings(diff.AddOrUpdate)
	sort.Strings(diff.Deleted)

	return diff, nil
}

// IsClean reports whether the working tree has no uncommitted changes.
// Returns ErrDirtyWorktree when modifications are present.
func (r *Repository) IsClean() error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}

	if !status.IsClean() {
		return ErrDirtyWorktree
	}

	return nil
}

// Files returns every file path present in the snapshot, sorted.
func (s *Snapshot) Files() ([]string, error) {
	var paths []string

	err := s.tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files at %s: %w", s.Name, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// ManifestPaths returns every dependency manifest path present in the snapshot, sorted.
func (s *Snapshot) ManifestPaths() ([]string, error) {
	var paths []string

	err := s.tree.Files().ForEach(func(f *object.File) error {
		if filepath.Base(f.Name) == ManifestFilename {
			paths = append(paths, f.Name)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list manifests at %s: %w", s.Name, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// Content returns the file content at the snapshot, or ErrFileAbsent
// when the path does not exist at this revision.
func (s *Snapshot) Content(path string) ([]byte, error) {
	f, err := s.tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s at %s: %w", path, s.Name, ErrFileAbsent)
		}

		return nil, fmt.Errorf("lookup %s at %s: %w", path, s.Name, err)
	}

	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s at %s: %w", path, s.Name, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", path, s.Name, err)
	}

	return content, nil
}

// Mode returns the committed file mode for a path, so packaged files keep
// the permissions recorded in history (notably the executable bit).
func (s *Snapshot) Mode(path string) (os.FileMode, error) {
	entry, err := s.tree.FindEntry(path)
	if err != nil {
		return 0, fmt.Errorf("%s at %s: %w", path, s.Name, ErrFileAbsent)
	}

	mode, err := entry.Mode.ToOSFileMode()
	if err != nil {
		return 0, fmt.Errorf("mode of %s at %s: %w", path, s.Name, err)
	}

	return mode, nil
}
