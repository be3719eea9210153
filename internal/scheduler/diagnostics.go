package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// TaskDiagnostic is the per-task portion of a diagnostic report.
type TaskDiagnostic struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Scheduled  bool   `json:"scheduled"`
	Running    bool   `json:"running"`
	// EngineNext is the next firing the live cron engine reports.
	EngineNext time.Time `json:"engine_next,omitempty"`
	// ComputedNext is an independent parse of the expression, used to catch
	// an engine entry that drifted or was silently dropped.
	ComputedNext time.Time     `json:"computed_next,omitempty"`
	Drift        time.Duration `json:"drift,omitempty"`
	// Overdue means the engine's next firing is in the past while the task
	// sits idle, which points at a stopped or wedged engine.
	Overdue     bool `json:"overdue"`
	MissedToday bool `json:"missed_today"`
	LastStart  time.Time `json:"last_start,omitempty"`
	LastFinish time.Time `json:"last_finish,omitempty"`
}

// Diagnostics is the operator-facing health report.
type Diagnostics struct {
	NowLocal        time.Time        `json:"now_local"`
	NowUTC          time.Time        `json:"now_utc"`
	Timezone        string           `json:"timezone"`
	State           string           `json:"state"`
	Enabled         bool             `json:"enabled"`
	TestMode        bool             `json:"test_mode"`
	Tasks           []TaskDiagnostic `json:"tasks"`
	Findings        []string         `json:"findings,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// Diagnose builds a health report: local vs UTC clock (schedules are parsed
// in local time, a common source of "my task fired at the wrong hour"
// confusion), per-task engine vs computed next firing, and whether a task
// missed its window today.
func (s *Scheduler) Diagnose() Diagnostics {
	now := time.Now()
	zone, _ := now.Zone()

	s.mu.Lock()
	engine := s.engine
	report := Diagnostics{
		NowLocal: now,
		NowUTC:   now.UTC(),
		Timezone: zone,
		State:    s.state.String(),
		Enabled:  s.cfg.Enabled,
		TestMode: s.cfg.TestMode,
	}
	states := make([]*taskState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.tasks[name])
	}
	s.mu.Unlock()

	report.Findings = s.heartbeatFindings()

	for _, ts := range states {
		d := TaskDiagnostic{Name: ts.name, Expression: ts.expression, Scheduled: ts.scheduled}

		if engine != nil && ts.scheduled {
			if entry := engine.Entry(ts.entryID); entry.Valid() {
				d.EngineNext = entry.Next
			}
		}

		var schedule interface{ Next(time.Time) time.Time }
		if parsed, err := s.parser.Parse(ts.expression); err == nil {
			schedule = parsed
			d.ComputedNext = parsed.Next(now)
		}
		if !d.EngineNext.IsZero() && !d.ComputedNext.IsZero() {
			d.Drift = d.EngineNext.Sub(d.ComputedNext)
			if d.Drift < 0 {
				d.Drift = -d.Drift
			}
		}

		ts.mu.Lock()
		d.Running = ts.active > 0
		d.LastStart = ts.lastStart
		d.LastFinish = ts.lastFinish
		lastStart := ts.lastStart
		ts.mu.Unlock()

		d.Overdue = !d.EngineNext.IsZero() && d.EngineNext.Before(now) && !d.Running

		// Interval expressions fire continuously; "missed today" only means
		// something for fixed-time schedules.
		if schedule != nil && !strings.HasPrefix(ts.expression, "@") {
			d.MissedToday = missedToday(schedule, lastStart, now)
		}
		report.Tasks = append(report.Tasks, d)

		if d.Overdue {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("task %s is overdue and idle, the engine may be stopped", d.Name))
		}
		if d.Drift > time.Second {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("task %s: engine next firing drifts %s from the expression, restart the scheduler", d.Name, d.Drift))
		}
		if d.MissedToday {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("task %s missed today's window, trigger it manually", d.Name))
		}
	}

	if report.State != StateReady.String() {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("scheduler is %s, nothing will fire until it is initialized", report.State))
	} else if !report.Enabled {
		report.Recommendations = append(report.Recommendations,
			"scheduling is disabled, enable it or trigger tasks manually")
	}
	return report
}

// missedToday reports whether the schedule had a firing earlier today that
// the task never started for.
func missedToday(schedule interface{ Next(time.Time) time.Time }, lastStart, now time.Time) bool {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// Next is strictly after its argument; back off a second so a midnight
	// schedule counts as today's firing.
	fire := schedule.Next(dayStart.Add(-time.Second))
	if fire.IsZero() || !fire.Before(now) {
		return false
	}
	// Give the engine an hour before calling a firing missed.
	if now.Sub(fire) < time.Hour {
		return false
	}
	return lastStart.Before(fire)
}
