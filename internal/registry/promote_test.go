package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/okrensky/modelgate/internal/ledger"
)

type stubValidator struct {
	err   error
	calls []string
}

func (s *stubValidator) Validate(_ context.Context, artifactPath string) error {
	s.calls = append(s.calls, artifactPath)
	return s.err
}

type fixture struct {
	staging string
	stable  string
	ledger  *ledger.Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	stable := filepath.Join(root, "stable")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatalf("mkdir staging: %v", err)
	}
	if err := os.MkdirAll(stable, 0o755); err != nil {
		t.Fatalf("mkdir stable: %v", err)
	}
	return fixture{
		staging: staging,
		stable:  stable,
		ledger:  ledger.New(filepath.Join(root, "ledger.log")),
	}
}

func (f fixture) addArtifact(t *testing.T, dir, id, content string) {
	t.Helper()
	path := filepath.Join(dir, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir artifact: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "model.pt"), []byte(content), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func (f fixture) promoteEntries(t *testing.T) []ledger.Entry {
	t.Helper()
	entries, err := f.ledger.Entries()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var promotes []ledger.Entry
	for _, entry := range entries {
		if entry.Action == ledger.ActionPromote {
			promotes = append(promotes, entry)
		}
	}
	return promotes
}

func TestPromote_Success(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, f.staging, "transformer-v1.0.0", "weights")
	v := &stubValidator{}
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, v, f.ledger)

	result, err := c.Promote(context.Background(), "transformer-v1.0.0")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if result.Destination != filepath.Join(f.stable, "transformer-v1.0.0") {
		t.Fatalf("unexpected destination: %s", result.Destination)
	}

	if _, err := os.Stat(filepath.Join(f.stable, "transformer-v1.0.0", "model.pt")); err != nil {
		t.Fatalf("artifact missing from stable: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.staging, "transformer-v1.0.0")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact still present in staging: %v", err)
	}

	promotes := f.promoteEntries(t)
	if len(promotes) != 1 || promotes[0].Status != ledger.StatusSuccess {
		t.Fatalf("expected one SUCCESS promote entry, got %+v", promotes)
	}
	if len(v.calls) != 1 {
		t.Fatalf("expected one validator call, got %d", len(v.calls))
	}
}

func TestPromote_AlreadyExistsLeavesTreesUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, f.staging, "m1", "staged-weights")
	f.addArtifact(t, f.stable, "m1", "stable-weights")
	v := &stubValidator{}
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, v, f.ledger)

	_, err := c.Promote(context.Background(), "m1")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	staged, err := os.ReadFile(filepath.Join(f.staging, "m1", "model.pt"))
	if err != nil || string(staged) != "staged-weights" {
		t.Fatalf("staging mutated: %q %v", staged, err)
	}
	stable, err := os.ReadFile(filepath.Join(f.stable, "m1", "model.pt"))
	if err != nil || string(stable) != "stable-weights" {
		t.Fatalf("stable mutated: %q %v", stable, err)
	}

	if len(v.calls) != 0 {
		t.Fatal("validator must not run when the immutability gate fails")
	}
	promotes := f.promoteEntries(t)
	if len(promotes) != 1 || promotes[0].Status != ledger.StatusAlreadyExists {
		t.Fatalf("expected ALREADY_EXISTS entry, got %+v", promotes)
	}
}

func TestPromote_SourceNotFoundBeforeValidation(t *testing.T) {
	f := newFixture(t)
	// The validator would reject everything, but existence is checked first.
	v := &stubValidator{err: errors.New("reject all")}
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, v, f.ledger)

	_, err := c.Promote(context.Background(), "ghost")
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if len(v.calls) != 0 {
		t.Fatal("validator must not run when the source is missing")
	}

	promotes := f.promoteEntries(t)
	if len(promotes) != 1 || promotes[0].Status != ledger.StatusSourceNotFound {
		t.Fatalf("expected SOURCE_NOT_FOUND entry, got %+v", promotes)
	}
}

func TestPromote_ValidationFailureAbortsBeforeMove(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, f.staging, "m1", "weights")
	v := &stubValidator{err: errors.New("tier-1 failed")}
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, v, f.ledger)

	_, err := c.Promote(context.Background(), "m1")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.staging, "m1")); err != nil {
		t.Fatalf("artifact should remain in staging: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.stable, "m1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact must not reach stable: %v", err)
	}

	promotes := f.promoteEntries(t)
	if len(promotes) != 1 || promotes[0].Status != ledger.StatusValidation {
		t.Fatalf("expected VALIDATION entry, got %+v", promotes)
	}
}

func TestPromote_BlockedWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, f.staging, "m1", "weights")

	other := ledger.NewLock(f.ledger, "other-promotion")
	if err := other.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, &stubValidator{}, f.ledger)
	_, err := c.Promote(context.Background(), "m1")
	if !errors.Is(err, ledger.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	promotes := f.promoteEntries(t)
	if len(promotes) != 1 || promotes[0].Status != ledger.StatusLedgerLock {
		t.Fatalf("expected LEDGER_LOCK entry, got %+v", promotes)
	}
}

func TestPromote_ReleasesLockAfterFailure(t *testing.T) {
	f := newFixture(t)
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, &stubValidator{}, f.ledger)

	if _, err := c.Promote(context.Background(), "ghost"); err == nil {
		t.Fatal("expected failure")
	}

	held, err := f.ledger.LockHeld()
	if err != nil || held {
		t.Fatalf("lock must be released after a gate failure: held=%v err=%v", held, err)
	}
}

func TestPromote_RejectsPathLikeIDs(t *testing.T) {
	f := newFixture(t)
	c := NewCoordinator(zerolog.Nop(), f.staging, f.stable, &stubValidator{}, f.ledger)

	for _, id := range []string{"", "a/b", `a\b`, ".", ".."} {
		if _, err := c.Promote(context.Background(), id); err == nil {
			t.Fatalf("expected error for id %q", id)
		}
	}
}
