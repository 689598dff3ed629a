// Package revision keeps a git history of each MOM and JIK body, one
// repository per document, so earlier wording can be inspected.
package revision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dokflow/api/internal/content"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is what gets committed as content.json.
type Snapshot struct {
	Title    string            `json:"title"`
	Sections []content.Section `json:"sections"`
}

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits snap when it differs from the last recorded snapshot.
// The boolean reports whether a new commit was written.
func (s *Service) Record(kind string, id uint, snap Snapshot, author, message string) (Commit, bool, error) {
	name := repoName(kind, id)
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, fresh, err := s.openOrInit(name)
	if err != nil {
		return Commit{}, false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, false, fmt.Errorf("open worktree: %w", err)
	}

	if snap.Sections == nil {
		snap.Sections = []content.Section{}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Commit{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), "content.json"), append(payload, '\n'), 0o644); err != nil {
		return Commit{}, false, fmt.Errorf("write content.json: %w", err)
	}

	if !fresh {
		status, err := worktree.Status()
		if err != nil {
			return Commit{}, false, fmt.Errorf("worktree status: %w", err)
		}
		if status.IsClean() {
			head, err := headCommit(repo)
			return head, false, err
		}
	}

	if _, err := worktree.Add("content.json"); err != nil {
		return Commit{}, false, fmt.Errorf("git add content: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@dokflow.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Commit{}, false, fmt.Errorf("commit content: %w", err)
	}

	if fresh {
		if err := pointMainAt(repo, hash); err != nil {
			return Commit{}, false, err
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), true, nil
}

// History lists commits newest first. A document that was never recorded
// has an empty history.
func (s *Service) History(kind string, id uint, limit int) ([]Commit, error) {
	name := repoName(kind, id)
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(name))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads the snapshot recorded by a (possibly abbreviated) hash.
func (s *Service) SnapshotAt(kind string, id uint, hash string) (Snapshot, error) {
	name := repoName(kind, id)
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(name))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshot(commitObj)
}

func (s *Service) openOrInit(name string) (*git.Repository, bool, error) {
	path := s.repoPath(name)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func pointMainAt(repo *git.Repository, hash plumbing.Hash) error {
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

func headCommit(repo *git.Repository) (Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return Commit{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return Commit{}, fmt.Errorf("load head commit: %w", err)
	}
	return toCommit(commitObj), nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("content.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load content.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	var snap Snapshot
	if err := json.NewDecoder(reader).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit content: %w", err)
	}
	return snap, nil
}

func (s *Service) repoPath(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *Service) documentLock(name string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[name]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[name] = lock
	return lock
}

func repoName(kind string, id uint) string {
	return fmt.Sprintf("%s-%d", kind, id)
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
