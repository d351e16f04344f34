// Package gitrepo wraps the handful of git commands the lifecycle tooling
// relies on. The interface keeps callers testable without a real repository;
// the exec implementation defers entirely to the operator's git binary.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repo is the narrow version-control surface the lifecycle tooling uses.
type Repo interface {
	// StagedFiles lists paths currently staged for commit, relative to the
	// repository root.
	StagedFiles(ctx context.Context) ([]string, error)

	// Commit records the staged changes and returns the new revision.
	Commit(ctx context.Context, message string) (string, error)

	// CommitAll stages everything and commits, returning the new revision.
	CommitAll(ctx context.Context, message string) (string, error)

	// HasChanges reports whether the given directory has uncommitted or
	// staged changes relative to HEAD. Pass "." for the whole tree.
	HasChanges(ctx context.Context, dir string) (bool, error)

	// CheckoutHead discards working changes under dir back to HEAD.
	CheckoutHead(ctx context.Context, dir string) error

	// CreateTag creates an annotated tag at HEAD.
	CreateTag(ctx context.Context, name, message string) error

	// TagExists reports whether the named tag already exists.
	TagExists(ctx context.Context, name string) (bool, error)
}

// ExecRepo runs git against a repository on disk.
type ExecRepo struct {
	dir string
}

// NewExecRepo returns a Repo rooted at dir.
func NewExecRepo(dir string) *ExecRepo {
	if dir == "" {
		dir = "."
	}
	return &ExecRepo{dir: dir}
}

func (r *ExecRepo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.dir}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(out.String())
		if detail != "" {
			return "", fmt.Errorf("git %s: %s", args[0], detail)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(out.String()), nil
}

// StagedFiles implements Repo.
func (r *ExecRepo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Commit implements Repo.
func (r *ExecRepo) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.git(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return r.git(ctx, "rev-parse", "HEAD")
}

// CommitAll implements Repo.
func (r *ExecRepo) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := r.git(ctx, "add", "-A"); err != nil {
		return "", err
	}
	return r.Commit(ctx, message)
}

// HasChanges implements Repo.
func (r *ExecRepo) HasChanges(ctx context.Context, dir string) (bool, error) {
	args := []string{"status", "--porcelain"}
	if dir != "" && dir != "." {
		args = append(args, "--", dir)
	}
	out, err := r.git(ctx, args...)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CheckoutHead implements Repo.
func (r *ExecRepo) CheckoutHead(ctx context.Context, dir string) error {
	_, err := r.git(ctx, "checkout", "HEAD", "--", dir)
	return err
}

// CreateTag implements Repo.
func (r *ExecRepo) CreateTag(ctx context.Context, name, message string) error {
	_, err := r.git(ctx, "tag", "-a", name, "-m", message)
	return err
}

// TagExists implements Repo.
func (r *ExecRepo) TagExists(ctx context.Context, name string) (bool, error) {
	out, err := r.git(ctx, "tag", "--list", name)
	if err != nil {
		return false, err
	}
	return out != "", nil
}
