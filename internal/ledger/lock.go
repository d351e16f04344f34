package ledger

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLockHeld is returned when a promotion lock is already held, either by
// the lock file or by an unresolved ledger sentinel.
var ErrLockHeld = errors.New("promotion lock held")

// Lock is a real advisory lock layered on top of the ledger sentinel. The
// sentinel lines stay in the ledger so external tooling that only reads the
// log format keeps working; the O_EXCL lock file closes the window between
// reading the ledger and appending to it.
type Lock struct {
	ledger  *Ledger
	path    string
	subject string
}

// NewLock returns a promotion lock for the given subject. The lock file
// lives next to the ledger.
func NewLock(l *Ledger, subject string) *Lock {
	return &Lock{
		ledger:  l,
		path:    l.Path() + ".lock",
		subject: subject,
	}
}

// Acquire takes the lock file and appends the ACQUIRED sentinel. Returns
// ErrLockHeld when another holder is active.
func (k *Lock) Acquire() error {
	held, err := k.ledger.LockHeld()
	if err != nil {
		return err
	}
	if held {
		return ErrLockHeld
	}

	file, err := os.OpenFile(k.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrLockHeld
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	_, _ = file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if err := file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	if err := k.ledger.Append(Entry{
		Action:  ActionLock,
		Subject: k.subject,
		Status:  StatusLockAcquired,
	}); err != nil {
		_ = os.Remove(k.path)
		return err
	}
	return nil
}

// Release appends the RELEASED sentinel and removes the lock file.
func (k *Lock) Release() error {
	if err := k.ledger.Append(Entry{
		Action:  ActionLock,
		Subject: k.subject,
		Status:  StatusLockReleased,
	}); err != nil {
		return err
	}
	if err := os.Remove(k.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Held reports whether either lock signal is active.
func (k *Lock) Held() (bool, error) {
	if _, err := os.Stat(k.path); err == nil {
		return true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	return k.ledger.LockHeld()
}
