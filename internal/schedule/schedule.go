// Package schedule parses each project's work_loop_schedule and answers
// "is it time to run a cycle" for the top-level scheduler (§4.1, §6.4).
// Grounded on the rest of the retrieved corpus rather than the teacher
// (which drives its background agents off plain time.Ticker intervals, with
// no cron expression concept): zkoranges-go-claw's go.mod pulls in
// github.com/robfig/cron/v3, adopted here for real cron-syntax parsing
// instead of hand-rolling a parser.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts the standard five-field cron syntax. The Parser is
// stateless and safe for concurrent use across every project's schedule.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule wraps a parsed cron expression for one project.
type Schedule struct {
	raw string
	sched cron.Schedule
}

// Parse validates a work_loop_schedule string, returning an error the
// setup-crons CLI surface (§6.4) reports back before registering it.
func Parse(expr string) (Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return Schedule{raw: expr, sched: sched}, nil
}

// Next returns the next activation time strictly after from.
func (s Schedule) Next(from time.Time) time.Time {
	return s.sched.Next(from)
}

// Due reports whether a cycle should run now given the last time one ran;
// lastRun being zero means "never ran", which is always due.
func (s Schedule) Due(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return !s.Next(lastRun).After(now)
}

// String returns the original cron expression.
func (s Schedule) String() string {
	return s.raw
}

// TickInterval is the top-level scheduler's poll interval: min(5s, the
// smallest configured schedule granularity it can resolve), per §4.1. Since
// cron schedules don't expose a fixed granularity, the driver conservatively
// polls every 5 seconds and lets Due() decide whether a project is actually
// due -- cheap enough at the scale this system runs at, and avoids having to
// infer a minimum period from an arbitrary cron AST.
const TickInterval = 5 * time.Second
