// Package registry implements the staging → stable promotion state machine.
// Stable is write-once: artifacts land there by atomic rename and are never
// mutated again.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/ledger"
	"github.com/okrensky/modelgate/internal/validator"
)

// Gate failure kinds, in the order the gates run.
var (
	ErrSourceNotFound = errors.New("artifact not found in staging")
	ErrAlreadyExists  = errors.New("artifact already exists in stable")
	ErrValidation     = errors.New("artifact failed validation")
	ErrMove           = errors.New("artifact move failed")
)

// Result describes a completed promotion.
type Result struct {
	ModelID     string
	Source      string
	Destination string
}

// Coordinator moves artifacts from the mutable staging area to the
// immutable stable area, gated by existence checks and the validator.
type Coordinator struct {
	logger     zerolog.Logger
	stagingDir string
	stableDir  string
	validator  validator.Validator
	ledger     *ledger.Ledger
}

// NewCoordinator constructs a promotion coordinator.
func NewCoordinator(logger zerolog.Logger, stagingDir, stableDir string, v validator.Validator, l *ledger.Ledger) *Coordinator {
	return &Coordinator{
		logger:     logger,
		stagingDir: stagingDir,
		stableDir:  stableDir,
		validator:  v,
		ledger:     l,
	}
}

// Promote runs the gate sequence for the given model identifier. Gates are
// checked strictly in order and every outcome is appended to the ledger
// before control returns. A promotion lock is held for the duration so
// cooperating committers stay out.
func (c *Coordinator) Promote(ctx context.Context, modelID string) (*Result, error) {
	if err := validateModelID(modelID); err != nil {
		return nil, err
	}

	source := filepath.Join(c.stagingDir, modelID)
	destination := filepath.Join(c.stableDir, modelID)

	lock := ledger.NewLock(c.ledger, modelID)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, ledger.ErrLockHeld) {
			c.record(modelID, source, destination, ledger.StatusLedgerLock)
			return nil, fmt.Errorf("promotion of %s: %w", modelID, err)
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			c.logger.Error().Err(err).Str("model_id", modelID).Msg("failed to release promotion lock")
		}
	}()

	// Gate 1: the artifact must exist in staging.
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.record(modelID, source, destination, ledger.StatusSourceNotFound)
			c.logger.Error().Str("model_id", modelID).Str("source", source).Msg("promotion failed: source not found")
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, fmt.Errorf("stat staging artifact: %w", err)
	}

	// Gate 2: stable is write-once. No merge, no overwrite, no force.
	if _, err := os.Stat(destination); err == nil {
		c.record(modelID, source, destination, ledger.StatusAlreadyExists)
		c.logger.Error().Str("model_id", modelID).Str("destination", destination).Msg("promotion failed: already in stable")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, destination)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat stable artifact: %w", err)
	}

	// Gate 3: the validator verdict is opaque; only pass/fail matters.
	if err := c.validator.Validate(ctx, source); err != nil {
		c.record(modelID, source, destination, ledger.StatusValidation)
		c.logger.Error().Err(err).Str("model_id", modelID).Msg("promotion failed: validation rejected")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Gate 4: atomic relocation. A failure here may leave a half-moved
	// directory; that state is unsafe to retry blindly, so it is logged as
	// fatal and left to the operator.
	if err := os.MkdirAll(c.stableDir, 0o755); err != nil {
		return nil, fmt.Errorf("create stable dir: %w", err)
	}
	if err := os.Rename(source, destination); err != nil {
		c.record(modelID, source, destination, ledger.StatusMoveError)
		c.logger.Error().Err(err).
			Str("model_id", modelID).
			Str("source", source).
			Str("destination", destination).
			Msg("promotion move failed; manual intervention required")
		return nil, fmt.Errorf("%w: %v", ErrMove, err)
	}

	c.record(modelID, source, destination, ledger.StatusSuccess)
	c.logger.Info().
		Str("model_id", modelID).
		Str("source", source).
		Str("destination", destination).
		Msg("artifact promoted to stable")

	return &Result{ModelID: modelID, Source: source, Destination: destination}, nil
}

func (c *Coordinator) record(modelID, source, destination, status string) {
	err := c.ledger.Append(ledger.Entry{
		Action:      ledger.ActionPromote,
		Subject:     modelID,
		Source:      source,
		Destination: destination,
		Status:      status,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("model_id", modelID).Msg("failed to append ledger entry")
	}
}

func validateModelID(modelID string) error {
	if modelID == "" {
		return errors.New("model id must not be empty")
	}
	if strings.ContainsAny(modelID, "/\\") || modelID == "." || modelID == ".." {
		return fmt.Errorf("model id %q must be a bare directory name", modelID)
	}
	return nil
}
