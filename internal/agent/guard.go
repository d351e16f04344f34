// Package agent enforces role-scoped commits. Each agent role owns exactly
// one directory prefix; the app role owns its root minus the prefixes
// reserved for the ML roles.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/config"
	"github.com/okrensky/modelgate/internal/gitrepo"
	"github.com/okrensky/modelgate/internal/ledger"
	"github.com/okrensky/modelgate/internal/validator"
)

// Gate failure kinds for commit attempts.
var (
	ErrUnknownRole   = errors.New("unknown agent role")
	ErrLedgerLock    = errors.New("promotion in progress; commit blocked")
	ErrNothingStaged = errors.New("no files staged for commit")
	ErrTestFailure   = errors.New("local validation failed")
)

// ScopeError reports every staged path outside the agent's scope. All
// violations are collected before aborting so the caller can fix them in
// one pass.
type ScopeError struct {
	Role       string
	Violations []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("agent %q may not commit: %s", e.Role, strings.Join(e.Violations, ", "))
}

// CommitResult describes a successful scoped commit.
type CommitResult struct {
	Role     string
	Revision string
	Files    []string
}

// Guard runs the gate sequence for agent commits. Every gate aborts the
// whole operation and leaves the repository untouched.
type Guard struct {
	logger     zerolog.Logger
	mapping    config.Mapping
	repo       gitrepo.Repo
	ledger     *ledger.Ledger
	validator  validator.Validator
	stagingDir string
	appCheck   func(ctx context.Context) error
}

// GuardOption customizes Guard behavior.
type GuardOption func(*Guard)

// WithAppCheck overrides the app role's static check, primarily for tests.
func WithAppCheck(check func(ctx context.Context) error) GuardOption {
	return func(g *Guard) {
		g.appCheck = check
	}
}

// NewGuard constructs a commit guard. appCheckCmd is the shell-style command
// run for the app role's static check (e.g. "npm run typecheck").
func NewGuard(logger zerolog.Logger, mapping config.Mapping, repo gitrepo.Repo, l *ledger.Ledger, v validator.Validator, stagingDir, repoDir, appCheckCmd string, opts ...GuardOption) *Guard {
	g := &Guard{
		logger:     logger,
		mapping:    mapping,
		repo:       repo,
		ledger:     l,
		validator:  v,
		stagingDir: stagingDir,
		appCheck:   execCheck(repoDir, appCheckCmd),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AttemptCommit runs the gates: lock, scope, role-local validation, commit.
// The lock gate runs first; a held promotion lock blocks the commit before
// any staged file is even examined.
func (g *Guard) AttemptCommit(ctx context.Context, role, message string) (*CommitResult, error) {
	scope, ok := g.mapping.ScopeFor(role)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownRole, role, strings.Join(g.mapping.Roles(), ", "))
	}

	lock := ledger.NewLock(g.ledger, role)
	held, err := lock.Held()
	if err != nil {
		return nil, err
	}
	if held {
		g.record(role, "", ledger.StatusLedgerLock)
		g.logger.Error().Str("role", role).Msg("commit blocked: promotion lock held")
		return nil, ErrLedgerLock
	}

	staged, err := g.repo.StagedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}
	if len(staged) == 0 {
		return nil, ErrNothingStaged
	}

	var violations []string
	for _, path := range staged {
		if !scopeAllows(scope, path) {
			violations = append(violations, path)
		}
	}
	if len(violations) > 0 {
		g.record(role, "", ledger.StatusScope)
		g.logger.Error().
			Str("role", role).
			Strs("violations", violations).
			Msg("commit blocked: staged files outside agent scope")
		return nil, &ScopeError{Role: role, Violations: violations}
	}

	if err := g.validateRole(ctx, role, scope); err != nil {
		g.record(role, "", ledger.StatusTestFailure)
		g.logger.Error().Err(err).Str("role", role).Msg("commit blocked: local validation failed")
		return nil, fmt.Errorf("%w: %v", ErrTestFailure, err)
	}

	tagged := fmt.Sprintf("[%s] %s", strings.ToUpper(role), message)
	revision, err := g.repo.Commit(ctx, tagged)
	if err != nil {
		g.record(role, "", ledger.StatusGitError)
		g.logger.Error().Err(err).Str("role", role).Msg("commit failed")
		return nil, fmt.Errorf("commit: %w", err)
	}

	g.record(role, revision, ledger.StatusSuccess)
	g.logger.Info().
		Str("role", role).
		Str("revision", revision).
		Int("files", len(staged)).
		Msg("agent commit recorded")

	return &CommitResult{Role: role, Revision: revision, Files: staged}, nil
}

// validateRole runs the role's local validation: ML roles validate every
// artifact currently sitting in staging, the app role runs its static check.
func (g *Guard) validateRole(ctx context.Context, role string, scope config.AgentScope) error {
	if role == "app" {
		return g.appCheck(ctx)
	}

	entries, err := os.ReadDir(g.stagingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		artifact := filepath.Join(g.stagingDir, entry.Name())
		if err := g.validator.Validate(ctx, artifact); err != nil {
			return fmt.Errorf("staging artifact %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (g *Guard) record(role, destination, status string) {
	err := g.ledger.Append(ledger.Entry{
		Action:      ledger.ActionCommit,
		Subject:     role,
		Destination: destination,
		Status:      status,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("role", role).Msg("failed to append ledger entry")
	}
}

// scopeAllows reports whether the staged path falls inside the role's
// prefix, honoring the app role's exclusion list.
func scopeAllows(scope config.AgentScope, path string) bool {
	if !underPrefix(scope.Prefix, path) {
		return false
	}
	for _, excluded := range scope.Exclude {
		if underPrefix(excluded, path) {
			return false
		}
	}
	return true
}

func underPrefix(prefix, path string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func execCheck(dir, command string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return errors.New("app check command not configured")
		}
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		cmd.Dir = dir
		output, err := cmd.CombinedOutput()
		if err != nil {
			detail := strings.TrimSpace(string(output))
			if detail != "" {
				return fmt.Errorf("%s: %s", command, detail)
			}
			return fmt.Errorf("%s: %w", command, err)
		}
		return nil
	}
}
