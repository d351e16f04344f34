// Package checkpoint creates immutable tags marking known-good states.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/gitrepo"
	"github.com/okrensky/modelgate/internal/ledger"
)

// ErrTagExists signals a checkpoint name collision. The monitor downgrades
// it to a warning; the snapshot CLI treats it as a failure.
var ErrTagExists = errors.New("checkpoint tag already exists")

const tagPrefix = "checkpoint"

// Result describes a checkpoint attempt.
type Result struct {
	Skipped  bool
	Tag      string
	Revision string
}

// Snapshotter commits pending work and tags the resulting revision. Tags
// are never moved or deleted once created.
type Snapshotter struct {
	logger zerolog.Logger
	repo   gitrepo.Repo
	ledger *ledger.Ledger
	now    func() time.Time
}

// Option customizes Snapshotter behavior.
type Option func(*Snapshotter)

// WithClock overrides the tag timestamp source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshotter) {
		s.now = now
	}
}

// New constructs a Snapshotter.
func New(logger zerolog.Logger, repo gitrepo.Repo, l *ledger.Ledger, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		logger: logger,
		repo:   repo,
		ledger: l,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take snapshots the working tree: a clean tree is an intentional skip,
// otherwise all pending work is committed and tagged. The tag is created at
// a clean state, after the snapshot commit.
func (s *Snapshotter) Take(ctx context.Context, suffix string) (Result, error) {
	dirty, err := s.repo.HasChanges(ctx, ".")
	if err != nil {
		s.record("", "", ledger.StatusGitError)
		return Result{}, fmt.Errorf("check working tree: %w", err)
	}
	if !dirty {
		s.logger.Info().Msg("working tree clean; checkpoint skipped")
		s.record("", "", ledger.StatusSkipped)
		return Result{Skipped: true}, nil
	}

	tag := s.tagName(suffix)

	exists, err := s.repo.TagExists(ctx, tag)
	if err != nil {
		s.record(tag, "", ledger.StatusGitError)
		return Result{}, fmt.Errorf("check tag: %w", err)
	}
	if exists {
		s.logger.Warn().Str("tag", tag).Msg("checkpoint tag collision; skipping")
		s.record(tag, "", ledger.StatusSkipped)
		return Result{Tag: tag}, fmt.Errorf("%w: %s", ErrTagExists, tag)
	}

	revision, err := s.repo.CommitAll(ctx, fmt.Sprintf("[SNAPSHOT] %s", tag))
	if err != nil {
		s.record(tag, "", ledger.StatusGitError)
		return Result{}, fmt.Errorf("snapshot commit: %w", err)
	}

	if err := s.repo.CreateTag(ctx, tag, "automated checkpoint of sustained healthy state"); err != nil {
		s.record(tag, revision, ledger.StatusGitError)
		return Result{}, fmt.Errorf("create tag: %w", err)
	}

	s.record(tag, revision, ledger.StatusSuccess)
	s.logger.Info().Str("tag", tag).Str("revision", revision).Msg("checkpoint created")

	return Result{Tag: tag, Revision: revision}, nil
}

func (s *Snapshotter) tagName(suffix string) string {
	name := fmt.Sprintf("%s-%s", tagPrefix, s.now().UTC().Format("20060102T150405Z"))
	suffix = strings.TrimSpace(suffix)
	if suffix != "" {
		name += "-" + suffix
	}
	return name
}

func (s *Snapshotter) record(tag, revision, status string) {
	err := s.ledger.Append(ledger.Entry{
		Action:      ledger.ActionSnapshot,
		Subject:     tag,
		Destination: revision,
		Status:      status,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag).Msg("failed to append ledger entry")
	}
}
