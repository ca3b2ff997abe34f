package application

import "time"

// EventType defines the kind of coordinator notification.
type EventType string

const (
	// EventTimerStarted names the slot that just became the active timer.
	// Observers treat every other slot as paused.
	EventTimerStarted EventType = "timer_started"
	// EventTimerPaused names a slot that stopped running.
	EventTimerPaused EventType = "timer_paused"
	// EventOutputUpdated carries the refreshed display text of one slot.
	EventOutputUpdated EventType = "output_updated"
	// EventReportApplied means the tracker accepted a slot's unreported time.
	EventReportApplied EventType = "report_applied"
	// EventReportFailed means a report for a slot failed; it is resent on a later tick.
	EventReportFailed EventType = "report_failed"
)

// Event is a coordinator update for observers.
type Event struct {
	Type     EventType
	Slot     int
	IssueKey string
	Elapsed  time.Duration
	Running  bool
	Text     string
	Message  string
	At       time.Time
}
