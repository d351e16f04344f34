package registry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/ledger"
)

// ErrCanceled is returned when the operator declines the confirmation
// prompt. Callers treat it as a clean exit, not a failure.
var ErrCanceled = errors.New("app promotion canceled")

// AppPromoter places a finished dev app into the next free numbered slot
// (v1, v2, ...) under the app stable directory. Slot numbering is
// first-gap-free: the lowest positive integer without a slot wins. This is a
// deliberately different placement policy from the keyed model promotion and
// the two are not unified.
type AppPromoter struct {
	logger    zerolog.Logger
	stableDir string
	ledger    *ledger.Ledger
	confirm   func(prompt string) (bool, error)
}

// AppOption customizes AppPromoter behavior.
type AppOption func(*AppPromoter)

// WithConfirm overrides the interactive confirmation, primarily for tests.
func WithConfirm(confirm func(prompt string) (bool, error)) AppOption {
	return func(p *AppPromoter) {
		p.confirm = confirm
	}
}

// NewAppPromoter constructs an app promoter writing into stableDir.
func NewAppPromoter(logger zerolog.Logger, stableDir string, l *ledger.Ledger, opts ...AppOption) *AppPromoter {
	p := &AppPromoter{
		logger:    logger,
		stableDir: stableDir,
		ledger:    l,
		confirm:   stdinConfirm,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Promote moves the dev app directory into the next free slot after
// interactive confirmation.
func (p *AppPromoter) Promote(ctx context.Context, devPath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(devPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.record(devPath, "", ledger.StatusSourceNotFound)
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, devPath)
		}
		return nil, fmt.Errorf("stat dev app: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dev app path %s is not a directory", devPath)
	}

	slot, err := p.nextSlot()
	if err != nil {
		return nil, err
	}
	destination := filepath.Join(p.stableDir, slot)

	ok, err := p.confirm(fmt.Sprintf("Promote %s to %s? [y/N] ", devPath, destination))
	if err != nil {
		return nil, fmt.Errorf("read confirmation: %w", err)
	}
	if !ok {
		p.logger.Info().Str("dev_path", devPath).Str("slot", slot).Msg("app promotion canceled by operator")
		p.record(devPath, destination, ledger.StatusSkipped)
		return nil, ErrCanceled
	}

	if err := os.MkdirAll(p.stableDir, 0o755); err != nil {
		return nil, fmt.Errorf("create app stable dir: %w", err)
	}
	if err := os.Rename(devPath, destination); err != nil {
		p.record(devPath, destination, ledger.StatusMoveError)
		p.logger.Error().Err(err).
			Str("dev_path", devPath).
			Str("destination", destination).
			Msg("app move failed; manual intervention required")
		return nil, fmt.Errorf("%w: %v", ErrMove, err)
	}

	p.record(devPath, destination, ledger.StatusSuccess)
	p.logger.Info().Str("dev_path", devPath).Str("destination", destination).Msg("app promoted")

	return &Result{ModelID: slot, Source: devPath, Destination: destination}, nil
}

// nextSlot scans the stable directory for v<N> entries and returns the
// lowest positive integer not yet occupied.
func (p *AppPromoter) nextSlot() (string, error) {
	occupied := make(map[int]bool)

	entries, err := os.ReadDir(p.stableDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read app stable dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "v") {
			continue
		}
		n, err := strconv.Atoi(name[1:])
		if err != nil || n <= 0 {
			continue
		}
		occupied[n] = true
	}

	slot := 1
	for occupied[slot] {
		slot++
	}
	return fmt.Sprintf("v%d", slot), nil
}

func (p *AppPromoter) record(source, destination, status string) {
	err := p.ledger.Append(ledger.Entry{
		Action:      ledger.ActionPromoteApp,
		Subject:     filepath.Base(source),
		Source:      source,
		Destination: destination,
		Status:      status,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("source", source).Msg("failed to append ledger entry")
	}
}

func stdinConfirm(prompt string) (bool, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
