// Package history records field file creation in a git repository.
//
// It uses go-git (pure Go, no git binary dependency).
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxLog caps the number of commits returned by Log.
const maxLog = 1000

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of a record's history.
type Commit struct {
	Hash        string
	Message     string
	Body        string
	Author      string
	AuthorEmail string
	When        time.Time
}

// Repo is the git repository holding one or more record directories.
type Repo struct {
	root         string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Find returns the repository enclosing dir, walking up the parents.
func Find(_ context.Context, dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return newRepo(repo, "", "")
}

// Open returns the repository enclosing dir, walking up the parents. If there
// is none, a new repository is initialized at dir.
func Open(ctx context.Context, dir, defaultName, defaultEmail string) (*Repo, error) {
	r, err := Find(ctx, dir)
	if err == nil {
		r.defaultName = defaultName
		r.defaultEmail = defaultEmail
		return r, nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	repo, err := gogit.PlainInit(abs, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize git repo: %w", err)
	}
	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to read git config: %w", err)
	}
	cfg.User.Name = defaultName
	cfg.User.Email = defaultEmail
	if err := repo.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to write git config: %w", err)
	}
	return newRepo(repo, defaultName, defaultEmail)
}

func newRepo(repo *gogit.Repository, defaultName, defaultEmail string) (*Repo, error) {
	w, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return &Repo{
		root:         w.Filesystem.Root(),
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// Root returns the worktree root.
func (r *Repo) Root() string {
	return r.root
}

// rel returns path relative to the worktree root, in slash form.
func (r *Repo) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s is outside of repository %s", path, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// Commit stages paths and commits them. Absolute paths must be inside the
// worktree; relative paths are relative to its root.
//
// It returns the new commit hash, or "" when there was nothing to commit.
func (r *Repo) Commit(_ context.Context, author Author, msg string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, p := range paths {
		rel, err := r.rel(p)
		if err != nil {
			return "", err
		}
		if _, err := w.Add(rel); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	status, err := w.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}

	name := author.Name
	email := author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	hash, err := w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  now,
		},
		Committer: &object.Signature{
			Name:  r.defaultName,
			Email: r.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return hash.String(), nil
}

// CommitCount returns the number of commits reachable from HEAD.
func (r *Repo) CommitCount(_ context.Context) (int, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		// Empty repository.
		return 0, nil
	}
	defer iter.Close()

	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n, nil
}

// Log returns up to n commits touching path, newest first. An empty path
// lists the whole repository. n <= 0 means maxLog.
func (r *Repo) Log(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > maxLog {
		n = maxLog
	}
	opts := &gogit.LogOptions{}
	if path != "" {
		rel, err := r.rel(path)
		if err != nil {
			return nil, err
		}
		if rel != "." {
			// Match every file below a record directory as well as the exact path.
			opts.PathFilter = func(p string) bool {
				return p == rel || strings.HasPrefix(p, rel+"/")
			}
		}
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		// Empty repository.
		return nil, nil
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Body:        strings.TrimSpace(body),
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			When:        c.Author.When,
		})
	}
	return commits, nil
}
