// Package timetracker maintains a session's work intervals. At most one
// interval is open at any time, and only while the session's time state is
// running. All mutations go through the SessionManager so they persist
// atomically with other session changes.
package timetracker

import (
	"fmt"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// Start opens a work interval. Starting an already-running session is a
// no-op, so a pause immediately followed by resume adds zero duration.
func Start(s *session.Session, user string, now time.Time) {
	if s.OpenInterval() != nil {
		s.TimeState = session.TimeRunning
		return
	}
	s.WorkSessions = append(s.WorkSessions, session.WorkSession{Start: now, User: user})
	s.TimeState = session.TimeRunning
	if s.Status == session.StatusCreated {
		s.Status = session.StatusInProgress
	}
}

// Pause closes the open interval, if any.
func Pause(s *session.Session, now time.Time) {
	closeOpen(s, now)
	s.TimeState = session.TimePaused
}

// Resume reopens tracking after a pause.
func Resume(s *session.Session, user string, now time.Time) {
	Start(s, user, now)
}

// Stop closes the open interval and leaves the session paused. Used by
// complete and by the signal path that must not orphan a running interval.
func Stop(s *session.Session, now time.Time) {
	closeOpen(s, now)
	s.TimeState = session.TimePaused
}

func closeOpen(s *session.Session, now time.Time) {
	if open := s.OpenInterval(); open != nil {
		end := now
		if end.Before(open.Start) {
			end = open.Start
		}
		open.End = &end
	}
}

// Elapsed sums all closed intervals plus, when running, the time since the
// open interval started.
func Elapsed(s *session.Session, now time.Time) time.Duration {
	var total time.Duration
	for i := range s.WorkSessions {
		total += s.WorkSessions[i].Duration(now)
	}
	return total
}

// FormatDuration renders a duration the way the time report shows it:
// whole hours and minutes.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
