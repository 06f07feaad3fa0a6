// Package scaffold creates the skeleton of a new sitegen project.
package scaffold

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Options controls Init.
type Options struct {
	// Force overwrites the config file and skeleton files that already exist.
	Force bool
	// Git initializes a repository (or reuses an existing one) and commits
	// the skeleton.
	Git bool
	// Author signs the initial commit. Defaults to GIT_AUTHOR_NAME and
	// GIT_AUTHOR_EMAIL, then to "sitegen".
	Author *object.Signature
}

// Result describes what Init did.
type Result struct {
	Root string
	// Written lists project-relative paths created or overwritten.
	Written []string
	// Skipped lists existing files left untouched.
	Skipped []string
	// Commit is the hash of the initial commit when Options.Git is set.
	Commit string
}

// Init writes a config file and a working skeleton into dir, creating dir
// when needed. An existing config file is an error unless opts.Force is set.
func Init(dir string, opts Options) (*Result, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve project directory").
			WithContext("path", dir).
			Build()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, ferrors.FileSystemError("failed to create project directory").
			WithCause(err).
			WithContext("path", root).
			Build()
	}

	res := &Result{Root: root}
	if err := config.Init(filepath.Join(root, config.DefaultFilename), opts.Force); err != nil {
		return nil, err
	}
	res.Written = append(res.Written, config.DefaultFilename)

	names := make([]string, 0, len(skeleton))
	for name := range skeleton {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := filepath.Join(root, filepath.FromSlash(name))
		if _, err := os.Stat(target); err == nil && !opts.Force {
			slog.Debug("Keeping existing file", logfields.Path(name))
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return nil, ferrors.FileSystemError("failed to create directory").
				WithCause(err).
				WithContext("path", filepath.Dir(target)).
				Build()
		}
		if err := os.WriteFile(target, []byte(skeleton[name]), 0o644); err != nil {
			return nil, ferrors.FileSystemError("failed to write skeleton file").
				WithCause(err).
				WithContext("path", name).
				Build()
		}
		res.Written = append(res.Written, name)
	}

	if opts.Git {
		hash, err := commitSkeleton(root, res.Written, opts.Author)
		if err != nil {
			return nil, err
		}
		res.Commit = hash
	}

	slog.Info("Project initialized",
		logfields.Path(root),
		logfields.Count(len(res.Written)),
		slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

func commitSkeleton(root string, files []string, author *object.Signature) (string, error) {
	repo, err := git.PlainInit(root, false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(root)
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to initialize git repository").
			WithContext("path", root).
			Build()
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to open git worktree").Build()
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to stage file").
				WithContext("path", f).
				Build()
		}
	}

	if author == nil {
		author = defaultAuthor()
	}
	if author.When.IsZero() {
		author.When = time.Now()
	}
	hash, err := wt.Commit("Initialize sitegen project", &git.CommitOptions{Author: author})
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to commit skeleton").Build()
	}
	return hash.String(), nil
}

func defaultAuthor() *object.Signature {
	name, email := os.Getenv("GIT_AUTHOR_NAME"), os.Getenv("GIT_AUTHOR_EMAIL")
	if name == "" {
		name = "sitegen"
	}
	if email == "" {
		email = "sitegen@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}
