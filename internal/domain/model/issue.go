package model

import "time"

// Session identifies an authenticated tracker session.
type Session struct {
	Username  string
	Name      string // Cookie name issued by the tracker, e.g. "JSESSIONID".
	Value     string
	CreatedAt time.Time
}

// Issue is the tracker's view of an issue, used to label timer slots.
type Issue struct {
	Key       string
	Summary   string
	Status    string
	TimeSpent time.Duration // Total time already logged on the tracker.
}
