// Package coordinator schedules a compiled process flow across a bounded
// worker pool, enforcing dependency ordering, partial-failure semantics,
// selective re-runs, live listener dispatch, and a resumable status
// record. All mutation of the per-step status map and the status record
// happens on a single internal goroutine, exactly as a real coordinator
// thread would serialize it; worker goroutines only run step commands and
// report back over a channel.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mensylisir/stc/durfmt"
	"github.com/mensylisir/stc/flow"
	"github.com/mensylisir/stc/listener"
	"github.com/mensylisir/stc/status"
	"github.com/mensylisir/stc/statusrecord"
	"github.com/mensylisir/stc/stepexec"
)

// Processor is the subset of stepexec.StepProcessor the coordinator
// depends on, so tests can substitute a fake.
type Processor interface {
	Execute(ctx context.Context, step *flow.Step, logDir string, l listener.Listener) status.Status
	EvaluateCommand(ctx context.Context, command, cwd string, env map[string]string) (bool, error)
}

// Coordinator is the scheduler described above. Construct with New, wire
// listeners, then Reset/Start/WaitFor.
type Coordinator struct {
	flow      *flow.ProcessFlow
	processor Processor
	listeners *listener.MultiListener
	record    *statusrecord.Store
	sem       *semaphore.Weighted
	workers   int

	mu               sync.Mutex
	statuses         map[string]status.Status
	outsideActive    map[string]bool
	haltOnError      bool
	failureOccurred  bool
	aborted          bool
	inProgressCount  int
	runID            string
	startedAt        time.Time
	endedAt          time.Time

	events      chan completionEvent
	terminalCh  chan struct{}
	terminalSet bool
	ctx         context.Context
	cancel      context.CancelFunc
}

type completionEvent struct {
	name   string
	status status.Status
}

// New builds a Coordinator over f with a worker pool sized numWorkers
// (at least 1), using processor to run each step's command and store to
// persist status transitions.
func New(f *flow.ProcessFlow, numWorkers int, processor Processor, store *statusrecord.Store) *Coordinator {
	if numWorkers < 1 {
		numWorkers = 1
	}
	c := &Coordinator{
		flow:          f,
		processor:     processor,
		listeners:     listener.NewMultiListener(),
		record:        store,
		sem:           semaphore.NewWeighted(int64(numWorkers)),
		workers:       numWorkers,
		statuses:      map[string]status.Status{},
		outsideActive: map[string]bool{},
		events:        make(chan completionEvent, len(f.Steps())+1),
		terminalCh:    make(chan struct{}),
	}
	for _, s := range f.Steps() {
		if !s.IsGroup {
			c.statuses[s.Name] = status.Waiting
		}
	}
	return c
}

// AddListener registers l for future step lifecycle events.
func (c *Coordinator) AddListener(l listener.Listener) { c.listeners.Add(l) }

// RemoveListener unregisters l.
func (c *Coordinator) RemoveListener(l listener.Listener) { c.listeners.Remove(l) }

// SetHaltOnError controls whether a FAILED step stops scheduling of
// further WAITING steps.
func (c *Coordinator) SetHaltOnError(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltOnError = v
}

// GetSteps returns every atomic and group step in the flow, in
// declaration order.
func (c *Coordinator) GetSteps() []*flow.Step { return c.flow.Steps() }

// GetStatus returns name's current status, deriving a group's status
// from its members on demand.
func (c *Coordinator) GetStatus(name string) status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getStatusLocked(name)
}

// RunID returns the identifier of the most recently started run, empty
// before the first Start.
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// GetRecords replays the persisted status record.
func (c *Coordinator) GetRecords() ([]statusrecord.Event, error) {
	return c.record.Load()
}

// Duration returns the wall-clock time from Start to the last transition
// into a terminal state, or the time elapsed so far if still running.
func (c *Coordinator) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		return 0
	}
	if c.endedAt.IsZero() {
		return time.Since(c.startedAt)
	}
	return c.endedAt.Sub(c.startedAt)
}

// DurationString renders Duration with durfmt, for terminal summaries.
func (c *Coordinator) DurationString() string {
	return durfmt.ShortDur(c.Duration())
}

// Reset marks every atomic step WAITING and truncates the status record.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	for name := range c.statuses {
		c.statuses[name] = status.Waiting
		c.outsideActive[name] = false
	}
	c.aborted = false
	c.failureOccurred = false
	c.mu.Unlock()
	return c.record.Truncate()
}

// ResetRange restricts the next run to the subgraph selected by
// fromPatterns/toPatterns: steps in the active set become WAITING, steps
// outside it become SKIPPED (and are recorded as such for the hard-edge
// exception during dispatch).
func (c *Coordinator) ResetRange(fromPatterns, toPatterns []string) error {
	active, err := c.flow.Subgraph(fromPatterns, toPatterns)
	if err != nil {
		return err
	}

	c.mu.Lock()
	now := nowMillis()
	for name := range c.statuses {
		if active[name] {
			c.statuses[name] = status.Waiting
			c.outsideActive[name] = false
			continue
		}
		c.statuses[name] = status.Skipped
		c.outsideActive[name] = true
	}
	c.aborted = false
	c.failureOccurred = false
	c.mu.Unlock()

	if err := c.record.Truncate(); err != nil {
		return err
	}
	for name, skipped := range snapshotOutsideActive(c) {
		if skipped {
			if err := c.record.Append(statusrecord.Event{TimeMillis: now, Step: name, Status: status.Skipped}); err != nil {
				return err
			}
		}
	}
	return nil
}

func snapshotOutsideActive(c *Coordinator) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.outsideActive))
	for k, v := range c.outsideActive {
		out[k] = v
	}
	return out
}

// Start begins scheduling against parent; it returns immediately. parent
// being cancelled (e.g. by a SIGINT shutdown hook) triggers the abort
// path: WAITING steps become SKIPPED and running steps are cancelled and
// awaited (see drainAbort).
func (c *Coordinator) Start(parent context.Context) {
	c.mu.Lock()
	c.runID = uuid.New().String()
	c.startedAt = time.Now()
	c.endedAt = time.Time{}
	c.terminalCh = make(chan struct{})
	c.terminalSet = false
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(parent)
	go c.run()
}

// Abort cancels the run's context, triggering the same shutdown sequence
// as the parent context being cancelled externally.
func (c *Coordinator) Abort() {
	if c.cancel != nil {
		c.cancel()
	}
}

// WaitFor blocks until every step is terminal and returns the exit code:
// 0 if the run completed with no FAILED step and was not aborted, 1
// otherwise.
func (c *Coordinator) WaitFor() int {
	<-c.terminalCh
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return 1
	}
	for _, st := range c.statuses {
		if st == status.Failed {
			return 1
		}
	}
	return 0
}

func (c *Coordinator) run() {
	c.mu.Lock()
	c.rescanLocked()
	finished := c.isTerminalLocked()
	c.mu.Unlock()
	if finished {
		c.finish()
		return
	}

	for {
		select {
		case ev := <-c.events:
			c.mu.Lock()
			c.applyCompletionLocked(ev)
			c.rescanLocked()
			finished := c.isTerminalLocked()
			c.mu.Unlock()
			if finished {
				c.finish()
				return
			}

		case <-c.ctx.Done():
			c.drainAbort()
			c.finish()
			return
		}
	}
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	if !c.terminalSet {
		c.endedAt = time.Now()
		c.terminalSet = true
		close(c.terminalCh)
	}
	c.mu.Unlock()
}

// drainAbort marks every WAITING step SKIPPED, then blocks until every
// step that was already IN_PROGRESS has reported back (their contexts
// were cancelled too, so stepexec's own SIGTERM-then-wait handles the
// actual process shutdown).
func (c *Coordinator) drainAbort() {
	c.mu.Lock()
	c.aborted = true
	now := nowMillis()
	for name, st := range c.statuses {
		if st == status.Waiting {
			c.statuses[name] = status.Skipped
			c.appendRecordLocked(name, status.Skipped, now)
		}
	}
	remaining := c.inProgressCount
	c.mu.Unlock()

	for i := 0; i < remaining; i++ {
		ev := <-c.events
		c.mu.Lock()
		c.applyCompletionLocked(ev)
		c.mu.Unlock()
	}
}

func (c *Coordinator) applyCompletionLocked(ev completionEvent) {
	c.statuses[ev.name] = ev.status
	c.inProgressCount--
	c.appendRecordLocked(ev.name, ev.status, nowMillis())
	if ev.status == status.Failed {
		c.failureOccurred = true
	}
}

func (c *Coordinator) appendRecordLocked(name string, st status.Status, whenMillis int64) {
	command := ""
	if step, ok := c.flow.Step(name); ok {
		command = step.Command
	}
	_ = c.record.Append(statusrecord.Event{TimeMillis: whenMillis, Run: c.runID, Step: name, Status: st, Command: command})
}

// rescanLocked runs one dispatch pass: haltOnError propagation, doom
// propagation, then dispatch of every now-eligible step, in topological
// (declaration-stable) order.
func (c *Coordinator) rescanLocked() {
	if c.haltOnError && c.failureOccurred {
		for _, name := range c.flow.TopoOrder() {
			if c.statuses[name] == status.Waiting {
				c.statuses[name] = status.Skipped
				c.appendRecordLocked(name, status.Skipped, nowMillis())
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for _, name := range c.flow.TopoOrder() {
			step, ok := c.flow.Step(name)
			if !ok || step.IsGroup {
				continue
			}
			if c.statuses[name] != status.Waiting {
				continue
			}
			if c.isDoomedLocked(name) {
				c.statuses[name] = status.Skipped
				c.appendRecordLocked(name, status.Skipped, nowMillis())
				changed = true
			}
		}
	}

	if c.aborted {
		return
	}

	for _, name := range c.flow.TopoOrder() {
		step, ok := c.flow.Step(name)
		if !ok || step.IsGroup {
			continue
		}
		if c.statuses[name] != status.Waiting {
			continue
		}
		if !c.isDispatchableLocked(name) {
			continue
		}
		if c.inProgressCount >= c.workers {
			// Every worker slot is taken: the step stays WAITING until a
			// completion frees one and triggers the next scan.
			break
		}
		if c.predicateSkipsLocked(step) {
			c.statuses[name] = status.Skipped
			c.appendRecordLocked(name, status.Skipped, nowMillis())
			continue
		}
		c.dispatchLocked(step)
	}
}

// predicateSkipsLocked evaluates step's if/unless predicates, through the
// same launcher a real step command runs with, before the step ever
// becomes IN_PROGRESS or occupies a worker slot. An if predicate that
// exits nonzero (or fails to run), or an unless predicate that exits
// zero, skips the step. Evaluation runs synchronously on the coordinator
// goroutine, matching the single-threaded dispatch-scan idiom everything
// else in this pass follows.
func (c *Coordinator) predicateSkipsLocked(step *flow.Step) bool {
	if step.If != "" {
		ok, err := c.processor.EvaluateCommand(c.ctx, step.If, step.Cwd, step.Env)
		if err != nil || !ok {
			return true
		}
	}
	if step.Unless != "" {
		ok, err := c.processor.EvaluateCommand(c.ctx, step.Unless, step.Cwd, step.Env)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Coordinator) dispatchLocked(step *flow.Step) {
	c.statuses[step.Name] = status.InProgress
	c.inProgressCount++
	c.appendRecordLocked(step.Name, status.InProgress, nowMillis())

	ctx := c.ctx
	go func() {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.events <- completionEvent{name: step.Name, status: status.Skipped}
			return
		}
		defer c.sem.Release(1)
		st := c.processor.Execute(ctx, step, c.flow.LogDir(), c.listeners)
		c.events <- completionEvent{name: step.Name, status: st}
	}()
}

func (c *Coordinator) isDispatchableLocked(name string) bool {
	for _, dep := range c.flow.Prerequisites(name) {
		prereqStatus := c.getStatusLocked(dep.Step)
		if dep.Soft {
			if !prereqStatus.IsTerminal() {
				return false
			}
			continue
		}
		if prereqStatus == status.Succeeded {
			continue
		}
		if prereqStatus == status.Skipped && c.outsideActive[dep.Step] {
			continue
		}
		return false
	}
	return true
}

func (c *Coordinator) isDoomedLocked(name string) bool {
	for _, dep := range c.flow.Prerequisites(name) {
		if dep.Soft {
			continue
		}
		prereqStatus := c.getStatusLocked(dep.Step)
		if prereqStatus == status.Failed {
			return true
		}
		if prereqStatus == status.Skipped && !c.outsideActive[dep.Step] {
			return true
		}
	}
	return false
}

func (c *Coordinator) getStatusLocked(name string) status.Status {
	step, ok := c.flow.Step(name)
	if !ok {
		return status.Waiting
	}
	if !step.IsGroup {
		if st, ok := c.statuses[name]; ok {
			return st
		}
		return status.Waiting
	}
	return c.deriveGroupStatusLocked(step)
}

func (c *Coordinator) deriveGroupStatusLocked(group *flow.Step) status.Status {
	if len(group.Members) == 0 {
		return status.Succeeded
	}
	allTerminal := true
	anyInProgress := false
	worst := status.Succeeded
	for _, member := range group.Members {
		ms := c.getStatusLocked(member)
		if ms == status.InProgress {
			anyInProgress = true
		}
		if !ms.IsTerminal() {
			allTerminal = false
		}
		worst = status.Worst(worst, ms)
	}
	if allTerminal {
		return worst
	}
	if anyInProgress {
		return status.InProgress
	}
	return status.Waiting
}

func (c *Coordinator) isTerminalLocked() bool {
	for _, st := range c.statuses {
		if st == status.Waiting || st == status.InProgress {
			return false
		}
	}
	return true
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

var _ Processor = (*stepexec.StepProcessor)(nil)
