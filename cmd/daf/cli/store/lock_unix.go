//go:build unix

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

// acquireLock takes an advisory flock on <root>/.lock. The kernel releases
// the lock if the holder dies, so no staleness handling is needed here.
func (s *Store) acquireLock(ctx context.Context) (func(), error) {
	path := paths.LockFile(s.root)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path is under the store root
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(lockWaitTimeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EAGAIN) {
			_ = f.Close()
			return nil, &LockError{Path: path, Err: err}
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			holder := ""
			if li, ok := readLockInfo(path); ok {
				holder = li.describe()
			}
			return nil, &LockError{Path: path, Holder: holder, Err: errors.New("timed out waiting for lock")}
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ErrInterrupted
		case <-time.After(lockRetryInterval):
		}
	}

	// Record the holder for diagnostics; best effort.
	if data, err := jsonutil.MarshalIndentWithNewline(currentLockInfo(), "", "  "); err == nil {
		_ = f.Truncate(0)
		_, _ = f.WriteAt(data, 0)
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
