package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	lockRetryInterval = 100 * time.Millisecond

	// lockWaitTimeout bounds how long a mutation waits for another daf
	// process before giving up with a LockError.
	lockWaitTimeout = 30 * time.Second

	// staleLockAge is how old a sentinel lock must be before it is
	// considered abandoned and broken.
	staleLockAge = 60 * time.Second
)

// lockInfo is written into the lock file so a blocked process can report who
// holds the lock.
type lockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func currentLockInfo() lockInfo {
	host, _ := os.Hostname()
	return lockInfo{PID: os.Getpid(), Hostname: host, AcquiredAt: time.Now().UTC()}
}

func (li lockInfo) describe() string {
	return fmt.Sprintf("pid %d on %s since %s", li.PID, li.Hostname, li.AcquiredAt.Format(time.RFC3339))
}

func readLockInfo(path string) (lockInfo, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the store root
	if err != nil {
		return lockInfo{}, false
	}
	var li lockInfo
	if err := json.Unmarshal(data, &li); err != nil || li.PID == 0 {
		return lockInfo{}, false
	}
	return li, true
}

// WithLock serializes a mutation against other daf processes. The lock covers
// local state transitions only; remote calls must happen outside fn.
// Acquisition waits up to lockWaitTimeout, polling every lockRetryInterval,
// and honors ctx cancellation with ErrInterrupted.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	release, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
