package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestEntry_FormatParseRoundTrip(t *testing.T) {
	entry := Entry{
		Timestamp:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Action:      ActionPromote,
		Subject:     "transformer-v1.0.0",
		Source:      "staging/transformer-v1.0.0",
		Destination: "stable/transformer-v1.0.0",
		Status:      StatusSuccess,
	}

	line := entry.Format()
	want := "[2026-03-14T09:26:53Z] [PROMOTE] [transformer-v1.0.0] [staging/transformer-v1.0.0] [stable/transformer-v1.0.0] [SUCCESS]"
	if line != want {
		t.Fatalf("unexpected line:\n got %s\nwant %s", line, want)
	}

	parsed, err := ParseLine(line)
	if err != nil {
		t.Fatalf("parse line: %v", err)
	}
	if parsed != entry {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestEntry_EmptyFieldsUseDash(t *testing.T) {
	entry := Entry{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Action:    ActionLock,
		Subject:   "promotion",
		Status:    StatusLockAcquired,
	}

	line := entry.Format()
	if !strings.Contains(line, "[-] [-]") {
		t.Fatalf("expected dashes for empty fields: %s", line)
	}

	parsed, err := ParseLine(line)
	if err != nil {
		t.Fatalf("parse line: %v", err)
	}
	if parsed.Source != "" || parsed.Destination != "" {
		t.Fatalf("expected empty source/destination, got %+v", parsed)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not a ledger line",
		"[2026-03-14T09:26:53Z] [PROMOTE] [x] [SUCCESS]",
		"[bad-time] [PROMOTE] [x] [a] [b] [SUCCESS]",
	}
	for _, line := range cases {
		if _, err := ParseLine(line); err == nil {
			t.Fatalf("expected error for line %q", line)
		}
	}
}

func TestLedger_AppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry", "ledger.log")
	l := New(path, WithClock(fixedClock()))

	if err := l.Append(Entry{Action: ActionPromote, Subject: "m1", Status: StatusSuccess}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(Entry{Action: ActionRestart, Subject: "ml-research", Status: StatusSuccess}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != ActionPromote || entries[1].Action != ActionRestart {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestLedger_EntriesMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger.log"))

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestLedger_EntriesSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	l := New(path, WithClock(fixedClock()))

	if err := l.Append(Entry{Action: ActionCommit, Subject: "research", Status: StatusSuccess}); err != nil {
		t.Fatalf("append: %v", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := file.WriteString("garbage from an external writer\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = file.Close()

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestLedger_LockHeld(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger.log"), WithClock(fixedClock()))

	held, err := l.LockHeld()
	if err != nil || held {
		t.Fatalf("fresh ledger should not hold lock: held=%v err=%v", held, err)
	}

	if err := l.Append(Entry{Action: ActionLock, Subject: "m1", Status: StatusLockAcquired}); err != nil {
		t.Fatalf("append: %v", err)
	}
	held, err = l.LockHeld()
	if err != nil || !held {
		t.Fatalf("expected lock held after acquire: held=%v err=%v", held, err)
	}

	if err := l.Append(Entry{Action: ActionLock, Subject: "m1", Status: StatusLockReleased}); err != nil {
		t.Fatalf("append: %v", err)
	}
	held, err = l.LockHeld()
	if err != nil || held {
		t.Fatalf("expected lock released: held=%v err=%v", held, err)
	}
}

func TestLock_AcquireRelease(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger.log"), WithClock(fixedClock()))

	lock := NewLock(l, "m1")
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	second := NewLock(l, "m2")
	if err := second.Acquire(); err != ErrLockHeld {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	held, err := second.Held()
	if err != nil || !held {
		t.Fatalf("expected held: held=%v err=%v", held, err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestLock_HonorsExternalSentinel(t *testing.T) {
	// An external writer that only knows the log format can still block us.
	l := New(filepath.Join(t.TempDir(), "ledger.log"), WithClock(fixedClock()))
	if err := l.Append(Entry{Action: ActionLock, Subject: "external", Status: StatusLockAcquired}); err != nil {
		t.Fatalf("append: %v", err)
	}

	lock := NewLock(l, "m1")
	if err := lock.Acquire(); err != ErrLockHeld {
		t.Fatalf("expected ErrLockHeld from sentinel, got %v", err)
	}
}
