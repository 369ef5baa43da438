// Package advisory implements process-level mutual exclusion over a
// project's or workspace's .px/ directory (spec.md §5). Every Acquire
// opens its own file descriptor, so two acquisitions within one process
// conflict exactly as two processes would.
package advisory

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pxtool/px/internal/pxerr"
)

// FileName is the lock file's name under a project's or workspace's .px/.
const FileName = "px.lock.advisory"

// DefaultTimeout bounds how long Acquire polls before giving up.
const DefaultTimeout = 10 * time.Second

const pollInterval = 25 * time.Millisecond

// Mode selects exclusive or shared acquisition.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

// Lock is a held (or pending) advisory lock on one project's .px/ dir.
type Lock struct {
	f    *os.File
	mode Mode
}

// Path returns the advisory lock file path inside pxDir, a project's
// or workspace's .px/ directory.
func Path(pxDir string) string {
	return filepath.Join(pxDir, FileName)
}

// Acquire opens (creating if necessary) the advisory lock file under
// pxDir and attempts to lock it in the given mode, polling until
// timeout. On timeout it returns a *pxerr.Error with CodeBusy.
func Acquire(pxDir string, mode Mode, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(pxDir, 0o755); err != nil {
		return nil, err
	}
	p := Path(pxDir)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_EX
	if mode == Shared {
		how = unix.LOCK_SH
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &Lock{f: f, mode: mode}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, pxerr.New(pxerr.CodeBusy,
				"another px process holds the lock on "+pxDir,
				[]string{"a concurrent mutating command is in progress"},
				[]string{"wait for the other command to finish and retry"})
		}
		time.Sleep(pollInterval)
	}
}

// Release unlocks and closes the underlying file. Safe to call once;
// a second call is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
