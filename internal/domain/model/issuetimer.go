package model

import (
	"fmt"
	"time"
)

// TimerSnapshot is a read-only projection of an IssueTimer.
type TimerSnapshot struct {
	IssueKey string
	Elapsed  time.Duration
	Running  bool
	Comment  string
}

// IssueTimer accumulates work time for a single issue. Elapsed only grows
// while the timer is running and only when Flush or Pause is called.
//
// IssueTimer is not safe for concurrent use; the coordinator owns every
// instance and serializes access.
type IssueTimer struct {
	issueKey   string
	comment    string
	elapsed    time.Duration
	running    bool
	lastTickAt time.Time
}

// NewIssueTimer creates a paused timer for issueKey seeded with elapsed.
func NewIssueTimer(issueKey string, elapsed time.Duration) *IssueTimer {
	if elapsed < 0 {
		elapsed = 0
	}
	return &IssueTimer{issueKey: issueKey, elapsed: elapsed}
}

// IssueKey returns the issue the timer is tracking. Empty means unassigned.
func (t *IssueTimer) IssueKey() string { return t.issueKey }

// Elapsed returns the accumulated time as of the last flush.
func (t *IssueTimer) Elapsed() time.Duration { return t.elapsed }

// Running reports whether the timer is running.
func (t *IssueTimer) Running() bool { return t.running }

// Start marks the timer running from now. Starting a running timer is a no-op.
func (t *IssueTimer) Start(now time.Time) {
	if t.running {
		return
	}
	t.running = true
	t.lastTickAt = now
}

// Pause folds the time since the last tick into Elapsed and stops the timer.
func (t *IssueTimer) Pause(now time.Time) {
	if !t.running {
		return
	}
	t.accumulate(now)
	t.running = false
	t.lastTickAt = time.Time{}
}

// Flush folds the time since the last tick into Elapsed without stopping.
func (t *IssueTimer) Flush(now time.Time) {
	if !t.running {
		return
	}
	t.accumulate(now)
	if now.After(t.lastTickAt) {
		t.lastTickAt = now
	}
}

// Reassign points the timer at a new issue and clears its elapsed time.
// A running timer must be paused first.
func (t *IssueTimer) Reassign(issueKey string) error {
	if t.running {
		return fmt.Errorf("reassign %q to %q: %w", t.issueKey, issueKey, ErrInvalidState)
	}
	t.issueKey = issueKey
	t.comment = ""
	t.elapsed = 0
	return nil
}

// SetElapsed overwrites the accumulated time. Only paused timers can be edited.
func (t *IssueTimer) SetElapsed(elapsed time.Duration) error {
	if t.running {
		return fmt.Errorf("edit elapsed of running timer %q: %w", t.issueKey, ErrInvalidState)
	}
	if elapsed < 0 {
		return fmt.Errorf("negative elapsed %s: %w", elapsed, ErrInvalidState)
	}
	t.elapsed = elapsed
	return nil
}

// SetComment sets the worklog comment sent along with reported time.
func (t *IssueTimer) SetComment(comment string) { t.comment = comment }

// Snapshot returns a copy of the timer's observable state.
func (t *IssueTimer) Snapshot() TimerSnapshot {
	return TimerSnapshot{
		IssueKey: t.issueKey,
		Elapsed:  t.elapsed,
		Running:  t.running,
		Comment:  t.comment,
	}
}

// accumulate never moves time backwards: a clock reading older than the last
// tick adds nothing.
func (t *IssueTimer) accumulate(now time.Time) {
	if delta := now.Sub(t.lastTickAt); delta > 0 {
		t.elapsed += delta
	}
}

// FormatElapsed renders a duration as hh:mm:ss for display.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
