// Package scheduler runs the persona activities on cron schedules. It owns
// the lifecycle state machine, per-task run guards, a heartbeat that
// cross-checks the cron engine, and manual triggering for operators.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"forumagent/internal/logging"
	"forumagent/internal/orchestrator"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrTaskNotFound is returned when triggering a task that was never
	// registered.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAlreadyInitialized is returned by Initialize after the first call.
	ErrAlreadyInitialized = errors.New("scheduler already initialized")
)

// DefaultExpression replaces invalid schedule expressions so a typo in one
// schedule never silently drops the task.
const DefaultExpression = "0 12 * * *"

// TaskFunc is one schedulable unit of work.
type TaskFunc func(ctx context.Context) orchestrator.ActivityResult

// Config controls scheduling behavior.
type Config struct {
	// Enabled gates scheduled firing. Manual triggering works either way.
	Enabled bool
	// TestMode replaces every registered expression with a short interval
	// so a full activity cycle can be observed in minutes.
	TestMode bool
	// TestInterval is the interval used in test mode.
	TestInterval time.Duration
	// HeartbeatInterval is how often the engine cross-check runs.
	HeartbeatInterval time.Duration
	// RunTimeout bounds a single task execution.
	RunTimeout time.Duration
}

// DefaultConfig returns the production scheduling configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		TestInterval:      2 * time.Minute,
		HeartbeatInterval: time.Minute,
		RunTimeout:        10 * time.Minute,
	}
}

// taskState tracks one registered task and its run history.
type taskState struct {
	name        string
	expression  string
	description string
	run         TaskFunc
	entryID     cron.EntryID
	scheduled   bool

	mu         sync.Mutex
	active     int
	lastStart  time.Time
	lastFinish time.Time
	lastResult orchestrator.ActivityResult
	runs       int
	skips      int
}

// Scheduler drives registered tasks through a cron engine.
type Scheduler struct {
	cfg    Config
	parser cron.Parser

	mu      sync.Mutex
	state   State
	engine  *cron.Cron
	tasks   map[string]*taskState
	order   []string
	baseCtx context.Context
}

// New creates a Scheduler. Tasks are registered before Initialize.
func New(cfg Config) *Scheduler {
	if cfg.TestInterval <= 0 {
		cfg.TestInterval = 2 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Scheduler{
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		state:  StateUninitialized,
		tasks:  map[string]*taskState{},
	}
}

// Register adds a task under a cron expression. An expression the parser
// rejects is replaced with DefaultExpression rather than dropping the task.
func (s *Scheduler) Register(name, expression, description string, fn TaskFunc) {
	if _, err := s.parser.Parse(expression); err != nil {
		logging.SchedulerWarn("task %s has invalid expression %q, substituting %q: %v",
			name, expression, DefaultExpression, err)
		expression = DefaultExpression
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		logging.SchedulerWarn("task %s registered twice, keeping the first registration", name)
		return
	}
	s.tasks[name] = &taskState{name: name, expression: expression, description: description, run: fn}
	s.order = append(s.order, name)
	logging.Scheduler("registered task %s (%s)", name, expression)
}

// Initialize builds the cron engine, schedules every registered task plus the
// heartbeat, and starts firing. With Enabled false the engine is never
// started; tasks stay available for manual triggering.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state=%s)", ErrAlreadyInitialized, state)
	}
	s.state = StateInitializing
	s.baseCtx = ctx

	if !s.cfg.Enabled {
		s.state = StateReady
		s.mu.Unlock()
		logging.Scheduler("scheduling disabled, tasks available for manual triggering only")
		return nil
	}

	s.engine = cron.New(cron.WithParser(s.parser))
	for _, name := range s.order {
		ts := s.tasks[name]
		expr := ts.expression
		if s.cfg.TestMode {
			expr = fmt.Sprintf("@every %s", s.cfg.TestInterval)
			ts.expression = expr
			logging.SchedulerWarn("test mode: task %s rescheduled to %s", name, expr)
		}
		id, err := s.engine.AddJob(expr, cron.FuncJob(func() { s.execute(ts, false) }))
		if err != nil {
			// The task stays registered for manual triggering; the heartbeat
			// keeps flagging it as unscheduled.
			logging.SchedulerError("failed to schedule task %s (%s), continuing without it: %v", name, expr, err)
			continue
		}
		ts.entryID = id
		ts.scheduled = true
	}
	if _, err := s.engine.AddFunc(fmt.Sprintf("@every %s", s.cfg.HeartbeatInterval), s.heartbeat); err != nil {
		logging.SchedulerError("failed to schedule heartbeat, continuing without it: %v", err)
	}

	s.engine.Start()
	s.state = StateReady
	count := len(s.order)
	s.mu.Unlock()

	logging.Scheduler("initialized with %d tasks (test_mode=%v)", count, s.cfg.TestMode)
	return nil
}

// Shutdown stops scheduled firing and waits for in-flight runs started by the
// engine to complete. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	engine := s.engine
	s.state = StateStopped
	s.mu.Unlock()

	if engine != nil {
		stopCtx := engine.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(30 * time.Second):
			logging.SchedulerWarn("in-flight tasks did not finish within shutdown grace period")
		}
	}
	logging.Scheduler("shut down")
}

// TriggerTask runs a task immediately, bypassing the schedule and the
// overlap guard, and returns its result.
func (s *Scheduler) TriggerTask(name string) (orchestrator.ActivityResult, error) {
	s.mu.Lock()
	ts, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return orchestrator.ActivityResult{}, fmt.Errorf("%w: %q", ErrTaskNotFound, name)
	}
	logging.Scheduler("manual trigger of task %s", name)
	return s.execute(ts, true), nil
}

// execute runs one task under the overlap guard. Scheduled firings skip when
// a run is already active; manual firings always proceed. Panics are
// recovered and recorded as failed runs so one bad activity never kills the
// engine or wedges the task.
func (s *Scheduler) execute(ts *taskState, manual bool) (result orchestrator.ActivityResult) {
	ts.mu.Lock()
	if ts.active > 0 && !manual {
		ts.skips++
		skips := ts.skips
		ts.mu.Unlock()
		logging.SchedulerWarn("task %s still running, skipping this firing (%d skipped so far)", ts.name, skips)
		return orchestrator.ActivityResult{Success: false, Message: "skipped: previous run still active"}
	}
	ts.active++
	ts.lastStart = time.Now()
	ts.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.SchedulerError("task %s panicked: %v", ts.name, r)
			result = orchestrator.ActivityResult{
				Success: false,
				Message: "task panicked",
				Err:     fmt.Sprintf("panic: %v", r),
			}
		}
		ts.mu.Lock()
		ts.active--
		ts.lastFinish = time.Now()
		ts.runs++
		ts.lastResult = result
		ts.mu.Unlock()
	}()

	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	logging.Scheduler("task %s starting (manual=%v)", ts.name, manual)
	result = ts.run(ctx)
	if result.Success {
		logging.Scheduler("task %s finished: %s", ts.name, result.Message)
	} else {
		logging.SchedulerWarn("task %s failed: %s (%s)", ts.name, result.Message, result.Err)
	}
	return result
}

// heartbeat cross-checks the cron engine against the registered tasks and
// logs anything that looks wedged.
func (s *Scheduler) heartbeat() {
	findings := s.heartbeatFindings()
	for _, finding := range findings {
		logging.SchedulerWarn("heartbeat: %s", finding)
	}
	if len(findings) == 0 {
		logging.SchedulerDebug("heartbeat ok")
	}
}

// heartbeatFindings returns the anomalies the heartbeat would log: tasks
// missing from the engine, entries with no next firing, and runs active past
// the run timeout.
func (s *Scheduler) heartbeatFindings() []string {
	s.mu.Lock()
	engine := s.engine
	state := s.state
	states := make([]*taskState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.tasks[name])
	}
	s.mu.Unlock()

	var findings []string
	if state != StateReady {
		findings = append(findings, fmt.Sprintf("scheduler not ready (state=%s)", state))
		return findings
	}

	for _, ts := range states {
		if engine != nil {
			if !ts.scheduled {
				findings = append(findings, fmt.Sprintf("task %s is registered but not on the engine", ts.name))
			} else if entry := engine.Entry(ts.entryID); !entry.Valid() {
				findings = append(findings, fmt.Sprintf("task %s has no engine entry", ts.name))
			} else if entry.Next.IsZero() {
				findings = append(findings, fmt.Sprintf("task %s has no next firing", ts.name))
			}
		}

		ts.mu.Lock()
		if ts.active > 0 && time.Since(ts.lastStart) > s.cfg.RunTimeout {
			findings = append(findings, fmt.Sprintf("task %s running past its timeout (started %s)",
				ts.name, ts.lastStart.Format(time.RFC3339)))
		}
		ts.mu.Unlock()
	}
	return findings
}
