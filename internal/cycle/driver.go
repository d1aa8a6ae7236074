package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/schedule"
)

// projectState tracks the per-project bookkeeping the driver needs between
// ticks: the mutex that makes a project's cycles non-overlapping, its
// parsed schedule, the last time a cycle ran, and a monotonic cycle number
// (§4.1, §5).
type projectState struct {
	mu        sync.Mutex
	sched     schedule.Schedule
	lastRun   time.Time
	cycleNum  int
}

// Driver is the per-project cycle driver and top-level scheduler (§4.1,
// §5). Grounded on orchestrator.go's Run/runCycle ticker loop, generalized
// from a single shared ticker over one project to one goroutine per
// enabled project, each gated by its own schedule.Schedule and mutex.
type Driver struct {
	repo    Repository
	cleanup *Cleanup
	review  *Review
	work    *Work
	log     *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectState // keyed by project id
}

// NewDriver constructs a Driver.
func NewDriver(repo Repository, cleanup *Cleanup, review *Review, work *Work, log *slog.Logger) *Driver {
	return &Driver{
		repo:     repo,
		cleanup:  cleanup,
		review:   review,
		work:     work,
		log:      log,
		projects: make(map[string]*projectState),
	}
}

// Run polls enabled projects every schedule.TickInterval until ctx is
// cancelled, running a bounded number of cycles in parallel -- one goroutine
// per project whose schedule is due. On cancellation it waits for in-flight
// cycles then returns; the caller is responsible for calling KillAll on the
// agent manager afterward (§5 "Cancellation").
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(schedule.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case now := <-ticker.C:
			projects, err := d.repo.ListEnabledProjects(ctx)
			if err != nil {
				d.log.Error("driver: list enabled projects failed", "error", err)
				continue
			}
			for _, p := range projects {
				state, err := d.stateFor(p)
				if err != nil {
					d.log.Error("driver: bad schedule", "project", p.Slug, "schedule", p.WorkLoopSchedule, "error", err)
					continue
				}
				if !state.sched.Due(state.lastRun, now) {
					continue
				}
				if !state.mu.TryLock() {
					continue // previous cycle for this project is still running
				}

				wg.Add(1)
				go func(p model.Project, state *projectState, now time.Time) {
					defer wg.Done()
					defer state.mu.Unlock()
					state.lastRun = now
					state.cycleNum++
					d.runCycle(ctx, p, state.cycleNum, now)
				}(p, state, now)
			}
		}
	}
}

func (d *Driver) stateFor(p model.Project) (*projectState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.projects[p.ID]
	if ok {
		return state, nil
	}

	sched, err := schedule.Parse(p.WorkLoopSchedule)
	if err != nil {
		return nil, err
	}
	state = &projectState{sched: sched}
	d.projects[p.ID] = state
	return state, nil
}

// runCycle runs cleanup, review, then work for one project, in that strict
// order (§4.1 "cleanup -> review -> work"). A phase's own failure is logged
// and does not prevent the next phase from running, except cleanup's ghost
// sweep, which is fatal to the cycle since later phases trust the
// in-memory agent map it reconciles.
func (d *Driver) runCycle(ctx context.Context, project model.Project, cycleNum int, now time.Time) {
	log := d.log.With("project", project.Slug, "cycle", cycleNum)
	log.Info("cycle started")

	if err := d.cleanup.Run(ctx, project, now); err != nil {
		log.Error("cleanup phase failed, aborting cycle", "error", err)
		return
	}

	if err := d.review.Run(ctx, project, now); err != nil {
		log.Error("review phase failed", "error", err)
	}

	if err := d.work.Run(ctx, project, now); err != nil {
		log.Error("work phase failed", "error", err)
	}

	log.Info("cycle finished")
}

// RunOnce runs a single cleanup->review->work cycle for one project
// immediately, bypassing the schedule. Only the tests call it.
func (d *Driver) RunOnce(ctx context.Context, project model.Project, now time.Time) error {
	if err := d.cleanup.Run(ctx, project, now); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if err := d.review.Run(ctx, project, now); err != nil {
		d.log.Error("review phase failed", "project", project.Slug, "error", err)
	}
	if err := d.work.Run(ctx, project, now); err != nil {
		d.log.Error("work phase failed", "project", project.Slug, "error", err)
	}
	return nil
}
