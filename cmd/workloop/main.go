// Workloop drives a per-project cleanup/review/work cycle against a pool
// of agents reached through an external gateway, keeping each project's
// kanban tasks moving and escalating what it can't resolve on its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/madhatter5501/workloop/internal/agent"
	"github.com/madhatter5501/workloop/internal/browsertabs"
	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/cycle"
	"github.com/madhatter5501/workloop/internal/github"
	"github.com/madhatter5501/workloop/internal/process"
	"github.com/madhatter5501/workloop/internal/rpcclient"
	"github.com/madhatter5501/workloop/internal/schedule"
	"github.com/madhatter5501/workloop/internal/store"
	"github.com/madhatter5501/workloop/internal/worktree"
)

// The blank assignment below is a compile-time check that *store.Store satisfies
// cycle.Repository, so a signature drift in either package fails the build
// here instead of surfacing as a runtime interface-conversion panic.
var _ cycle.Repository = (*store.Store)(nil)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var (
		dbPath        = flag.String("db", "", "SQLite database path (defaults to config)")
		browserTabURL = flag.String("browser-control-url", "", "Browser-control endpoint for stale tab cleanup (disabled if empty)")
		showVersion   = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("workloop %s (commit: %s)\n", version, gitCommit)
		os.Exit(0)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.DefaultConfig()
	cfg.ApplyEnv()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.ApplyStore(ctx, st); err != nil {
		log.Error("apply persisted config failed", "error", err)
		os.Exit(1)
	}

	rpc := rpcclient.New(cfg.GatewayBaseURL(), cfg.OpenclawToken)

	args := flag.Args()
	if len(args) > 0 && args[0] == "setup-crons" {
		os.Exit(runSetupCrons(ctx, st, rpc, log))
	}

	agents := agent.NewManager(rpc, st, cfg.RecentlyReapedWindow)
	admission := cycle.NewAdmission(cfg, agents)

	runner := process.NewRunner()
	ghFor := func(localPath string) *github.Client { return github.NewClient(runner, localPath) }
	wtFor := func(localPath string) *worktree.Manager { return worktree.NewManager(runner, localPath) }

	var tabs *browsertabs.Client
	if *browserTabURL != "" {
		tabs = browsertabs.New(*browserTabURL)
	}

	cleanupPhase := cycle.NewCleanup(st, agents, ghFor, wtFor, tabs, cfg, log)
	reviewPhase := cycle.NewReview(st, agents, admission, ghFor, cfg, log)
	workPhase := cycle.NewWork(st, agents, admission, cfg, log)
	driver := cycle.NewDriver(st, cleanupPhase, reviewPhase, workPhase, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("workloop starting", "db", cfg.DBPath, "gateway", cfg.GatewayBaseURL())
	if err := driver.Run(ctx); err != nil {
		log.Error("driver stopped with error", "error", err)
		os.Exit(1)
	}

	killCtx, killCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer killCancel()
	if err := agents.KillAll(killCtx); err != nil {
		log.Warn("kill all agents on shutdown failed", "error", err)
	}

	log.Info("workloop stopped")
}

// runSetupCrons registers a trap-work-loop-<slug> scheduled job in the
// agent gateway for every enabled project with both local_path and
// github_repo set (§6.4). It validates each project's work_loop_schedule
// with robfig/cron/v3 before sending anything, and returns the process exit
// code: 0 on success, 1 if any project's schedule or registration call
// fails.
func runSetupCrons(ctx context.Context, st *store.Store, rpc *rpcclient.Client, log *slog.Logger) int {
	projects, err := st.ListEnabledProjects(ctx)
	if err != nil {
		log.Error("setup-crons: list enabled projects failed", "error", err)
		return 1
	}

	exit := 0
	for _, p := range projects {
		if p.LocalPath == "" || p.GithubRepo == "" {
			continue
		}

		sched, err := schedule.Parse(p.WorkLoopSchedule)
		if err != nil {
			log.Error("setup-crons: invalid schedule", "project", p.Slug, "schedule", p.WorkLoopSchedule, "error", err)
			exit = 1
			continue
		}

		jobID := "trap-work-loop-" + p.Slug
		command := fmt.Sprintf("workloop-gate --project %s", p.Slug)
		if err := rpc.CronRegister(ctx, rpcclient.CronRegisterParams{
			JobID: jobID, Schedule: sched.String(), Command: command,
		}); err != nil {
			log.Error("setup-crons: register failed", "job_id", jobID, "error", err)
			exit = 1
			continue
		}
		log.Info("registered scheduled job", "job_id", jobID, "schedule", sched.String())
	}

	return exit
}
