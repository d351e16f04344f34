package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Action tags the kind of lifecycle event recorded in the ledger.
type Action string

const (
	ActionPromote    Action = "PROMOTE"
	ActionPromoteApp Action = "PROMOTE_APP"
	ActionRollback   Action = "ROLLBACK"
	ActionRestart    Action = "RESTART"
	ActionSnapshot   Action = "SNAPSHOT"
	ActionCommit     Action = "COMMIT"
	ActionLock       Action = "LOCK"
)

// Status values recorded in the last field of a ledger line.
const (
	StatusSuccess        = "SUCCESS"
	StatusSkipped        = "SKIPPED"
	StatusLockAcquired   = "ACQUIRED"
	StatusLockReleased   = "RELEASED"
	StatusSourceNotFound = "FAILED:SOURCE_NOT_FOUND"
	StatusAlreadyExists  = "FAILED:ALREADY_EXISTS"
	StatusValidation     = "FAILED:VALIDATION"
	StatusMoveError      = "FAILED:MOVE_ERROR"
	StatusLedgerLock     = "FAILED:LEDGER_LOCK"
	StatusScope          = "FAILED:SCOPE"
	StatusTestFailure    = "FAILED:TEST_FAILURE"
	StatusGitError       = "FAILED:GIT_ERROR"
	StatusRuntimeError   = "FAILED:RUNTIME_ERROR"
)

// Entry is a single ledger event. The ledger is append-only; entries are
// never rewritten, and ordering is append order.
type Entry struct {
	Timestamp   time.Time
	Action      Action
	Subject     string
	Source      string
	Destination string
	Status      string
}

// Format renders an entry as a single ledger line, without the trailing
// newline. Empty fields are recorded as "-" so every line has six columns.
func (e Entry) Format() string {
	return fmt.Sprintf("[%s] [%s] [%s] [%s] [%s] [%s]",
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Action,
		orDash(e.Subject),
		orDash(e.Source),
		orDash(e.Destination),
		orDash(e.Status),
	)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

// ParseLine parses a ledger line back into an Entry.
func ParseLine(line string) (Entry, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Entry{}, errors.New("empty ledger line")
	}
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return Entry{}, fmt.Errorf("malformed ledger line: %q", line)
	}

	inner := trimmed[1 : len(trimmed)-1]
	fields := strings.Split(inner, "] [")
	if len(fields) != 6 {
		return Entry{}, fmt.Errorf("ledger line has %d fields, want 6: %q", len(fields), line)
	}

	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("parse ledger timestamp: %w", err)
	}

	return Entry{
		Timestamp:   ts,
		Action:      Action(fields[1]),
		Subject:     dashToEmpty(fields[2]),
		Source:      dashToEmpty(fields[3]),
		Destination: dashToEmpty(fields[4]),
		Status:      dashToEmpty(fields[5]),
	}, nil
}

func dashToEmpty(value string) string {
	if value == "-" {
		return ""
	}
	return value
}

// Ledger is the append-only event log shared by the promotion coordinator,
// the commit guard, and the failsafe monitor. It doubles as the cooperative
// promotion-lock signal that external tooling reads.
type Ledger struct {
	path string
	now  func() time.Time
}

// Option customizes ledger behavior.
type Option func(*Ledger)

// WithClock overrides the timestamp source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New returns a ledger backed by the file at path. The file is created on
// first append.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Append records an event. The timestamp is stamped here so callers cannot
// write out-of-order times.
func (l *Ledger) Append(entry Entry) error {
	entry.Timestamp = l.now().UTC()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(entry.Format() + "\n"); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return file.Sync()
}

// Entries reads every well-formed entry in append order. Malformed lines
// are skipped; external writers only have to honor the line format.
func (l *Ledger) Entries() ([]Entry, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry, err := ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return entries, nil
}

// LockHeld reports whether the most recent LOCK entry is an unresolved
// acquire. This is the cooperative check: writers that ignore the ledger can
// still race, which the design accepts.
func (l *Ledger) LockHeld() (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}

	held := false
	for _, entry := range entries {
		if entry.Action != ActionLock {
			continue
		}
		switch entry.Status {
		case StatusLockAcquired:
			held = true
		case StatusLockReleased:
			held = false
		}
	}
	return held, nil
}
