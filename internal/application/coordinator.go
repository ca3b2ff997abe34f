package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// ErrCoordinatorStopped is returned by commands issued after Run has returned.
var ErrCoordinatorStopped = errors.New("timer coordinator stopped")

// MaxSlots caps the number of timer slots.
const MaxSlots = 100

// CoordinatorConfig contains runtime options for TimerCoordinator.
type CoordinatorConfig struct {
	// TickInterval is how often every slot is flushed and reported.
	TickInterval time.Duration
	// ReportThreshold is the minimum unreported time before a slot is reported.
	ReportThreshold time.Duration
	// ReportConcurrency bounds the number of in-flight tracker reports.
	ReportConcurrency int
	// TimerEditable allows hand-editing accumulated elapsed time.
	TimerEditable bool
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

func (cfg CoordinatorConfig) withDefaults() CoordinatorConfig {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.ReportThreshold < time.Second {
		cfg.ReportThreshold = time.Second
	}
	if cfg.ReportConcurrency <= 0 {
		cfg.ReportConcurrency = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return cfg
}

// SlotView is the read-only projection of one slot handed to the UI.
type SlotView struct {
	Slot int
	model.TimerSnapshot
	Unreported time.Duration
	Display    string
}

// slot is one entry of the timer set. generation changes whenever the slot's
// identity changes, so late report results can be matched against it.
type slot struct {
	timer      *model.IssueTimer
	generation uint64
	reported   time.Duration
	inFlight   time.Duration
}

// unreported is the flushed time neither accepted by nor in flight to the tracker.
func (s *slot) unreported() time.Duration {
	return max(s.timer.Elapsed()-s.reported-s.inFlight, 0)
}

type command struct {
	apply func(ctx context.Context) error
	done  chan error
}

type reportJob struct {
	slot       int
	generation uint64
	issueKey   string
	started    time.Time
	delta      time.Duration
	comment    string
	final      bool
}

type reportResult struct {
	job reportJob
	err error
}

// TimerCoordinator owns the timer set. Every mutation, including the periodic
// tick, runs on the Run goroutine. Tracker reports run off-loop and their
// results come back through the same loop.
type TimerCoordinator struct {
	trackers *TrackerClientProvider
	cfg      CoordinatorConfig
	logger   *slog.Logger

	commands chan command
	results  chan reportResult
	stopped  chan struct{}
	once     sync.Once
	reports  sync.WaitGroup

	// Owned by the Run goroutine.
	slots          []*slot
	nextGeneration uint64
	timerEditable  bool
	outstanding    int
	closing        bool

	mu     sync.Mutex
	events []chan Event
}

// NewTimerCoordinator creates a coordinator with an empty timer set.
func NewTimerCoordinator(trackers *TrackerClientProvider, cfg CoordinatorConfig, logger *slog.Logger) *TimerCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &TimerCoordinator{
		trackers:      trackers,
		cfg:           cfg,
		logger:        logger,
		commands:      make(chan command),
		results:       make(chan reportResult),
		stopped:       make(chan struct{}),
		timerEditable: cfg.TimerEditable,
	}
}

// Subscribe registers a new observer channel. Events are dropped for
// observers whose buffer is full.
func (c *TimerCoordinator) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	c.mu.Lock()
	c.events = append(c.events, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes an observer channel returned by Subscribe.
func (c *TimerCoordinator) Unsubscribe(sub <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.events {
		if ch == sub {
			c.events = append(c.events[:i], c.events[i+1:]...)
			close(ch)
			return
		}
	}
}

// Run drives the coordinator until ctx is canceled. On exit every running
// timer is paused so its final elapsed time is materialized, and observer
// channels are closed. Run must be called at most once.
func (c *TimerCoordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.logger.Info("timer coordinator started", "tick_interval", c.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			c.stop()
			c.logger.Info("timer coordinator stopped")
			return
		case <-ticker.C:
			c.tick(ctx, c.cfg.Clock())
		case cmd := <-c.commands:
			cmd.done <- cmd.apply(ctx)
		case res := <-c.results:
			c.applyReportResult(res)
		}
	}
}

func (c *TimerCoordinator) stop() {
	c.once.Do(func() {
		c.pauseAll(c.cfg.Clock())
		close(c.stopped)

		c.mu.Lock()
		events := c.events
		c.events = nil
		c.mu.Unlock()
		for _, ch := range events {
			close(ch)
		}
	})
}

// do runs apply on the Run goroutine and waits for its result.
func (c *TimerCoordinator) do(ctx context.Context, apply func(ctx context.Context) error) error {
	done := make(chan error, 1)
	select {
	case c.commands <- command{apply: apply, done: done}:
	case <-c.stopped:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resize grows or shrinks the timer set to count slots. Shrinking removes
// trailing slots; a running timer among them is paused first and any
// unreported time is sent to the tracker. The removed slots are returned.
func (c *TimerCoordinator) Resize(ctx context.Context, count int) ([]model.TimerSnapshot, error) {
	if count < 1 || count > MaxSlots {
		return nil, fmt.Errorf("resize to %d: %w", count, model.ErrInvalidSlot)
	}

	var removed []model.TimerSnapshot
	err := c.do(ctx, func(loopCtx context.Context) error {
		now := c.cfg.Clock()
		for len(c.slots) > count {
			last := len(c.slots) - 1
			removed = append(removed, c.retireLocked(loopCtx, last, now))
			c.slots = c.slots[:last]
		}
		for len(c.slots) < count {
			c.slots = append(c.slots, c.newSlotLocked(model.NewIssueTimer("", 0), 0))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Removal happened last-first; report in slot order.
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}
	return removed, nil
}

// RequestStart makes slot the only running timer: whichever other slot is
// running is paused first. Starting an unassigned slot fails with
// ErrInvalidState.
func (c *TimerCoordinator) RequestStart(ctx context.Context, index int) error {
	return c.do(ctx, func(context.Context) error {
		s, err := c.slotLocked(index)
		if err != nil {
			return err
		}
		if s.timer.IssueKey() == "" {
			return fmt.Errorf("start slot %d without issue key: %w", index, model.ErrInvalidState)
		}

		now := c.cfg.Clock()
		for i, other := range c.slots {
			if i != index && other.timer.Running() {
				other.timer.Pause(now)
				c.emitSlotLocked(EventTimerPaused, i, other, now)
			}
		}
		s.timer.Start(now)
		c.emitSlotLocked(EventTimerStarted, index, s, now)
		return nil
	})
}

// RequestPause pauses slot. Other slots are unaffected.
func (c *TimerCoordinator) RequestPause(ctx context.Context, index int) error {
	return c.do(ctx, func(context.Context) error {
		s, err := c.slotLocked(index)
		if err != nil {
			return err
		}
		if !s.timer.Running() {
			return nil
		}
		now := c.cfg.Clock()
		s.timer.Pause(now)
		c.emitSlotLocked(EventTimerPaused, index, s, now)
		return nil
	})
}

// PauseActive pauses whichever slot is running and returns its index, or -1
// when nothing was running.
func (c *TimerCoordinator) PauseActive(ctx context.Context) (int, error) {
	paused := -1
	err := c.do(ctx, func(context.Context) error {
		now := c.cfg.Clock()
		for i, s := range c.slots {
			if s.timer.Running() {
				s.timer.Pause(now)
				c.emitSlotLocked(EventTimerPaused, i, s, now)
				paused = i
			}
		}
		return nil
	})
	return paused, err
}

// SetIssueKey assigns issueKey to slot, resetting its elapsed time. An empty
// key unassigns the slot. A running slot must be paused first. Time the old
// issue had not yet reported is sent to the tracker before the switch.
func (c *TimerCoordinator) SetIssueKey(ctx context.Context, index int, issueKey string) error {
	issueKey = strings.TrimSpace(issueKey)
	return c.do(ctx, func(loopCtx context.Context) error {
		s, err := c.slotLocked(index)
		if err != nil {
			return err
		}
		if s.timer.Running() {
			return fmt.Errorf("set issue key on slot %d: %w", index, model.ErrInvalidState)
		}
		if s.timer.IssueKey() == issueKey {
			return nil
		}

		c.reportFinalLocked(loopCtx, index, s, c.cfg.Clock())
		if err := s.timer.Reassign(issueKey); err != nil {
			return err
		}
		c.slots[index] = c.newSlotLocked(s.timer, 0)
		c.emitSlotLocked(EventOutputUpdated, index, c.slots[index], c.cfg.Clock())
		return nil
	})
}

// SetElapsed overwrites the accumulated time of a paused slot. It fails with
// ErrInvalidState unless timer editing is enabled.
func (c *TimerCoordinator) SetElapsed(ctx context.Context, index int, elapsed time.Duration) error {
	return c.do(ctx, func(context.Context) error {
		if !c.timerEditable {
			return fmt.Errorf("edit elapsed on slot %d: editing disabled: %w", index, model.ErrInvalidState)
		}
		s, err := c.slotLocked(index)
		if err != nil {
			return err
		}
		if err := s.timer.SetElapsed(elapsed); err != nil {
			return err
		}
		// Time already sent cannot be taken back; only new time is reported.
		s.reported = min(s.reported, elapsed)
		c.emitSlotLocked(EventOutputUpdated, index, s, c.cfg.Clock())
		return nil
	})
}

// SetComment sets the worklog comment sent with slot's reports.
func (c *TimerCoordinator) SetComment(ctx context.Context, index int, comment string) error {
	return c.do(ctx, func(context.Context) error {
		s, err := c.slotLocked(index)
		if err != nil {
			return err
		}
		s.timer.SetComment(comment)
		return nil
	})
}

// SetTimerEditable toggles whether SetElapsed is allowed.
func (c *TimerCoordinator) SetTimerEditable(ctx context.Context, editable bool) error {
	return c.do(ctx, func(context.Context) error {
		c.timerEditable = editable
		return nil
	})
}

// Tick flushes every slot at now, publishes each slot's display text and
// dispatches tracker reports for slots with enough unreported time.
func (c *TimerCoordinator) Tick(ctx context.Context, now time.Time) error {
	return c.do(ctx, func(loopCtx context.Context) error {
		c.tick(loopCtx, now)
		return nil
	})
}

// Snapshots returns the current state of every slot.
func (c *TimerCoordinator) Snapshots(ctx context.Context) ([]SlotView, error) {
	var views []SlotView
	err := c.do(ctx, func(context.Context) error {
		views = make([]SlotView, 0, len(c.slots))
		for i, s := range c.slots {
			snap := s.timer.Snapshot()
			views = append(views, SlotView{
				Slot:          i,
				TimerSnapshot: snap,
				Unreported:    max(snap.Elapsed-s.reported, 0),
				Display:       model.FormatElapsed(snap.Elapsed),
			})
		}
		return nil
	})
	return views, err
}

// Export returns the ordered persistence snapshot of every slot. Running
// timers are flushed first but keep running. Reports still in flight are
// awaited so the snapshot's reported time matches what the tracker accepted.
func (c *TimerCoordinator) Export(ctx context.Context) ([]model.PersistedIssue, error) {
	var issues []model.PersistedIssue
	err := c.do(ctx, func(context.Context) error {
		c.drainLocked(ctx)
		now := c.cfg.Clock()
		for _, s := range c.slots {
			s.timer.Flush(now)
		}
		issues = c.exportLocked()
		return nil
	})
	return issues, err
}

// Import replaces the timer set with one paused slot per entry, seeded with
// the entry's elapsed time. No timer resumes across a restart.
func (c *TimerCoordinator) Import(ctx context.Context, issues []model.PersistedIssue) error {
	return c.do(ctx, func(loopCtx context.Context) error {
		now := c.cfg.Clock()
		for i := range c.slots {
			c.retireLocked(loopCtx, i, now)
		}

		slots := make([]*slot, 0, len(issues))
		for _, issue := range issues {
			timer := model.NewIssueTimer(strings.TrimSpace(issue.IssueKey), issue.Elapsed)
			timer.SetComment(issue.Comment)
			reported := min(max(issue.Reported, 0), timer.Elapsed())
			slots = append(slots, c.newSlotLocked(timer, reported))
		}
		c.slots = slots
		return nil
	})
}

// Shutdown pauses every timer, stops dispatching new reports, waits for
// in-flight reports until ctx ends and returns the persistence snapshot.
// Time whose report did not come back before ctx ended stays unreported.
func (c *TimerCoordinator) Shutdown(ctx context.Context) ([]model.PersistedIssue, error) {
	var issues []model.PersistedIssue
	// The drain honors ctx; the reply is always awaited so a timed-out drain
	// still yields a snapshot.
	err := c.do(context.WithoutCancel(ctx), func(context.Context) error {
		c.closing = true
		c.pauseAll(c.cfg.Clock())
		c.drainLocked(ctx)
		issues = c.exportLocked()
		return nil
	})
	return issues, err
}

// WaitReports blocks until every dispatched report has returned or ctx ends.
func (c *TimerCoordinator) WaitReports(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.reports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TimerCoordinator) tick(ctx context.Context, now time.Time) {
	var jobs []reportJob
	for i, s := range c.slots {
		s.timer.Flush(now)
		c.emitSlotLocked(EventOutputUpdated, i, s, now)

		key := s.timer.IssueKey()
		if key == "" || s.inFlight > 0 {
			continue
		}
		// The tracker logs whole seconds; the remainder stays pending.
		if pending := s.unreported().Truncate(time.Second); pending >= c.cfg.ReportThreshold {
			jobs = append(jobs, c.reserveLocked(i, s, now, pending, false))
		}
	}
	c.dispatch(ctx, jobs)
}

// reserveLocked marks delta, ending at now, as in flight for s.
func (c *TimerCoordinator) reserveLocked(index int, s *slot, now time.Time, delta time.Duration, final bool) reportJob {
	s.inFlight += delta
	return reportJob{
		slot:       index,
		generation: s.generation,
		issueKey:   s.timer.IssueKey(),
		started:    now.Add(-delta),
		delta:      delta,
		comment:    s.timer.Snapshot().Comment,
		final:      final,
	}
}

// reportFinalLocked sends whatever s has not reported yet, before the slot
// loses its identity. The result is never applied back.
func (c *TimerCoordinator) reportFinalLocked(ctx context.Context, index int, s *slot, now time.Time) {
	if s.timer.IssueKey() == "" {
		return
	}
	if pending := s.unreported().Truncate(time.Second); pending >= time.Second {
		c.dispatch(ctx, []reportJob{c.reserveLocked(index, s, now, pending, true)})
	}
}

// retireLocked pauses the slot, reports its remaining time and returns its
// final snapshot.
func (c *TimerCoordinator) retireLocked(ctx context.Context, index int, now time.Time) model.TimerSnapshot {
	s := c.slots[index]
	if s.timer.Running() {
		s.timer.Pause(now)
		c.emitSlotLocked(EventTimerPaused, index, s, now)
	}
	c.reportFinalLocked(ctx, index, s, now)
	return s.timer.Snapshot()
}

// dispatch sends jobs to the tracker off the loop goroutine.
func (c *TimerCoordinator) dispatch(ctx context.Context, jobs []reportJob) {
	if len(jobs) == 0 {
		return
	}

	client := c.trackers.Get()
	if client == nil || c.closing {
		// Release the reservations so the time stays pending.
		for _, job := range jobs {
			if s := c.matchLocked(job); s != nil {
				s.inFlight = max(s.inFlight-job.delta, 0)
			}
		}
		c.logger.Debug("skipping reports", "slots", len(jobs), "logged_in", client != nil, "closing", c.closing)
		return
	}

	c.outstanding += len(jobs)
	c.reports.Add(1)
	go func() {
		defer c.reports.Done()

		var g errgroup.Group
		g.SetLimit(c.cfg.ReportConcurrency)
		for _, job := range jobs {
			g.Go(func() error {
				err := client.ReportElapsed(ctx, job.issueKey, job.started, job.delta, job.comment)
				c.deliver(reportResult{job: job, err: err})
				return nil // Each slot's outcome is delivered individually.
			})
		}
		_ = g.Wait()
	}()
}

func (c *TimerCoordinator) deliver(res reportResult) {
	select {
	case c.results <- res:
	case <-c.stopped:
	}
}

// drainLocked applies report results until none are in flight or ctx ends.
func (c *TimerCoordinator) drainLocked(ctx context.Context) {
	for c.outstanding > 0 {
		select {
		case res := <-c.results:
			c.applyReportResult(res)
		case <-ctx.Done():
			c.logger.Warn("snapshot taken with tracker reports in flight",
				"reports", c.outstanding,
				"error", ctx.Err(),
			)
			return
		}
	}
}

func (c *TimerCoordinator) applyReportResult(res reportResult) {
	job := res.job
	now := c.cfg.Clock()
	c.outstanding--

	if res.err != nil {
		c.logger.Warn("tracker report failed",
			"slot", job.slot,
			"issue", job.issueKey,
			"delta", job.delta,
			"final", job.final,
			"error", res.err,
		)
		c.emitLocked(Event{
			Type:     EventReportFailed,
			Slot:     job.slot,
			IssueKey: job.issueKey,
			Message:  reportFailureMessage(res.err),
			At:       now,
		})
	}

	s := c.matchLocked(job)
	if s == nil || job.final {
		c.logger.Debug("discarding report result for retired slot", "slot", job.slot, "issue", job.issueKey)
		return
	}

	s.inFlight = max(s.inFlight-job.delta, 0)
	if res.err != nil {
		return
	}
	s.reported = min(s.reported+job.delta, s.timer.Elapsed())
	c.emitLocked(Event{
		Type:     EventReportApplied,
		Slot:     job.slot,
		IssueKey: job.issueKey,
		Elapsed:  s.reported,
		At:       now,
	})
}

func reportFailureMessage(err error) string {
	if errors.Is(err, driven.ErrAuth) {
		return "tracker session expired, log in again"
	}
	return err.Error()
}

// matchLocked returns the slot a job was issued for, or nil when the slot has
// since been removed or reassigned.
func (c *TimerCoordinator) matchLocked(job reportJob) *slot {
	if job.slot < 0 || job.slot >= len(c.slots) {
		return nil
	}
	s := c.slots[job.slot]
	if s.generation != job.generation || s.timer.IssueKey() != job.issueKey {
		return nil
	}
	return s
}

func (c *TimerCoordinator) newSlotLocked(timer *model.IssueTimer, reported time.Duration) *slot {
	c.nextGeneration++
	return &slot{timer: timer, generation: c.nextGeneration, reported: reported}
}

func (c *TimerCoordinator) slotLocked(index int) (*slot, error) {
	if index < 0 || index >= len(c.slots) {
		return nil, fmt.Errorf("slot %d of %d: %w", index, len(c.slots), model.ErrInvalidSlot)
	}
	return c.slots[index], nil
}

func (c *TimerCoordinator) pauseAll(now time.Time) {
	for i, s := range c.slots {
		if s.timer.Running() {
			s.timer.Pause(now)
			c.emitSlotLocked(EventTimerPaused, i, s, now)
		}
	}
}

func (c *TimerCoordinator) exportLocked() []model.PersistedIssue {
	issues := make([]model.PersistedIssue, 0, len(c.slots))
	for _, s := range c.slots {
		snap := s.timer.Snapshot()
		issues = append(issues, model.PersistedIssue{
			IssueKey: snap.IssueKey,
			Elapsed:  snap.Elapsed,
			Reported: min(s.reported, snap.Elapsed),
			Comment:  snap.Comment,
		})
	}
	return issues
}

func (c *TimerCoordinator) emitSlotLocked(eventType EventType, index int, s *slot, now time.Time) {
	snap := s.timer.Snapshot()
	c.emitLocked(Event{
		Type:     eventType,
		Slot:     index,
		IssueKey: snap.IssueKey,
		Elapsed:  snap.Elapsed,
		Running:  snap.Running,
		Text:     model.FormatElapsed(snap.Elapsed),
		At:       now,
	})
}

// emitLocked holds mu while sending so Unsubscribe cannot close a channel
// mid-send. Sends never block.
func (c *TimerCoordinator) emitLocked(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.events {
		select {
		case ch <- event:
		default:
		}
	}
}
