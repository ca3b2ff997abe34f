package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
)

// ErrAuth is returned when the tracker rejects the supplied credentials or the
// session has expired. Local timer state is unaffected.
var ErrAuth = errors.New("tracker authentication failed")

// ErrReport is returned when elapsed time could not be submitted. The caller
// resends the still-unreported time on a later tick.
var ErrReport = errors.New("tracker report failed")

// ErrIssueNotFound is returned by FetchIssue for an unknown issue key.
var ErrIssueNotFound = errors.New("issue not found")

// TrackerClient defines the driven port for the remote issue tracker.
type TrackerClient interface {
	// Authenticate opens a session for username. Returns an error wrapping
	// ErrAuth on rejected credentials.
	Authenticate(ctx context.Context, username, password string) (model.Session, error)

	// ReportElapsed logs elapsed work time, begun at started, against issueKey.
	// comment may be empty. Only whole seconds are logged.
	// Returns an error wrapping ErrReport (or ErrAuth when the session is gone).
	ReportElapsed(ctx context.Context, issueKey string, started time.Time, elapsed time.Duration, comment string) error

	// FetchIssue returns the tracker's summary of issueKey.
	FetchIssue(ctx context.Context, issueKey string) (model.Issue, error)
}
