//go:build !unix

package store

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

// acquireLock uses an exclusive-create sentinel file on platforms without
// flock. A sentinel left behind by a dead or hung process is broken after
// staleLockAge.
func (s *Store) acquireLock(ctx context.Context) (func(), error) {
	path := paths.LockFile(s.root)
	deadline := time.Now().Add(lockWaitTimeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path is under the store root
		if err == nil {
			if data, mErr := jsonutil.MarshalIndentWithNewline(currentLockInfo(), "", "  "); mErr == nil {
				_, _ = f.Write(data)
			}
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, &LockError{Path: path, Err: err}
		}

		if li, ok := readLockInfo(path); ok {
			if isStale(li) {
				logging.Warn(ctx, "breaking stale store lock",
					"holder_pid", li.PID, "acquired_at", li.AcquiredAt)
				_ = os.Remove(path)
				continue
			}
			if time.Now().After(deadline) {
				return nil, &LockError{Path: path, Holder: li.describe(), Err: errors.New("timed out waiting for lock")}
			}
		} else if time.Now().After(deadline) {
			return nil, &LockError{Path: path, Err: errors.New("timed out waiting for lock")}
		}

		select {
		case <-ctx.Done():
			return nil, ErrInterrupted
		case <-time.After(lockRetryInterval):
		}
	}
}

// isStale reports whether a sentinel lock is abandoned: its holder process
// is gone, or it is older than staleLockAge.
func isStale(li lockInfo) bool {
	if time.Since(li.AcquiredAt) > staleLockAge {
		return true
	}
	if _, err := os.FindProcess(li.PID); err != nil {
		return true
	}
	return false
}
