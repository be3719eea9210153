package scheduler

import (
	"strings"
	"time"

	"forumagent/internal/logging"
)

// expressionType classifies a schedule as firing at fixed daily times or on
// a rolling interval.
func expressionType(expression string) string {
	if strings.HasPrefix(expression, "@") {
		return "interval"
	}
	return "daily"
}

// TaskStatus is a point-in-time snapshot of one registered task.
type TaskStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Type        string    `json:"type"`
	Scheduled   bool      `json:"scheduled"`
	Running     bool      `json:"running"`
	NextRun     time.Time `json:"next_run,omitempty"`
	LastStart   time.Time `json:"last_start,omitempty"`
	LastFinish  time.Time `json:"last_finish,omitempty"`
	Runs        int       `json:"runs"`
	Skips       int       `json:"skips"`
	LastSuccess bool      `json:"last_success"`
	LastMessage string    `json:"last_message,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	State    string       `json:"state"`
	Enabled  bool         `json:"enabled"`
	TestMode bool         `json:"test_mode"`
	Tasks    []TaskStatus `json:"tasks"`
}

// Status reports the scheduler state and every task's schedule and run
// history. NextRun comes from the live engine entry when one exists, falling
// back to an independent parse of the expression otherwise.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	engine := s.engine
	out := Status{
		State:    s.state.String(),
		Enabled:  s.cfg.Enabled,
		TestMode: s.cfg.TestMode,
	}
	states := make([]*taskState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.tasks[name])
	}
	s.mu.Unlock()

	now := time.Now()
	for _, ts := range states {
		info := TaskStatus{
			Name:        ts.name,
			Description: ts.description,
			Expression:  ts.expression,
			Type:        expressionType(ts.expression),
			Scheduled:   ts.scheduled,
		}

		if engine != nil && ts.scheduled {
			if entry := engine.Entry(ts.entryID); entry.Valid() {
				info.NextRun = entry.Next
			}
		}
		if schedule, err := s.parser.Parse(ts.expression); err == nil {
			computed := schedule.Next(now)
			if info.NextRun.IsZero() {
				info.NextRun = computed
			} else if drift := info.NextRun.Sub(computed); drift > time.Second || drift < -time.Second {
				logging.SchedulerWarn("task %s: engine next firing %s disagrees with expression (%s)",
					ts.name, info.NextRun.Format(time.RFC3339), computed.Format(time.RFC3339))
			}
		}

		ts.mu.Lock()
		info.Running = ts.active > 0
		info.LastStart = ts.lastStart
		info.LastFinish = ts.lastFinish
		info.Runs = ts.runs
		info.Skips = ts.skips
		if ts.runs > 0 {
			info.LastSuccess = ts.lastResult.Success
			info.LastMessage = ts.lastResult.Message
			info.LastError = ts.lastResult.Err
		}
		ts.mu.Unlock()

		out.Tasks = append(out.Tasks, info)
	}
	return out
}
