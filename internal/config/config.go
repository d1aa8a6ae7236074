// Package config builds the supervisor's runtime configuration through the
// same three-tier precedence the teacher uses for bare_repo/
// max_parallel_agents in cmd/factory/main.go: flags override environment
// variables, which override persisted config rows, which fall back to
// DefaultConfig()'s built-in defaults.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigStore is the subset of internal/store.Store config.go needs to read
// the lowest-precedence tier.
type ConfigStore interface {
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
}

// Config holds every tunable the cycle driver, agent manager, and admission
// controller consult (§4.1, §4.7, §6.6).
type Config struct {
	// External service addresses (§6.6).
	ConvexURL       string
	OpenclawHost    string
	OpenclawPort    string
	OpenclawToken   string
	OpenclawHTTPURL string
	TrapURL         string

	// Capacity defaults (§4.7). Examples in the spec: global 6, per-project
	// 3, dev 4, reviewer 2.
	MaxAgentsGlobal     int
	MaxAgentsPerProject int
	MaxDevAgents        int
	MaxReviewerAgents   int

	// RecentlyReapedWindow is the Open Question resolution from §9: exposed
	// as config rather than hardcoded, default 60s.
	RecentlyReapedWindow time.Duration

	// GhostGracePeriod is how long an in_progress task with no session row
	// at all is tolerated before being treated as a ghost (§4.2).
	GhostGracePeriod time.Duration

	// StuckTaskAge is the age threshold the gate aggregator uses for
	// stuckTasks (§4.9): in_progress tasks not updated in this long.
	StuckTaskAge time.Duration

	// RPCTimeout/SubprocessTimeout/WorktreeRemoveTimeout hold the default
	// per-call timeouts. Nothing outside this package reads them: the
	// rpcclient, github and worktree packages use their own built-in
	// timeouts.
	RPCTimeout            time.Duration
	SubprocessTimeout     time.Duration
	WorktreeRemoveTimeout time.Duration

	// AgentTimeoutSeconds is the timeoutSeconds passed to chat.send (§4.2
	// spawn() signature), distinct from the timeout on the HTTP call
	// itself.
	AgentTimeoutSeconds int

	DBPath string
}

// DefaultConfig returns the built-in defaults, mirroring the teacher's
// DefaultConfig() constructor in orchestrator.go.
func DefaultConfig() Config {
	return Config{
		OpenclawHost:          "localhost",
		OpenclawPort:          "4317",
		MaxAgentsGlobal:       6,
		MaxAgentsPerProject:   3,
		MaxDevAgents:          4,
		MaxReviewerAgents:     2,
		RecentlyReapedWindow:  60 * time.Second,
		GhostGracePeriod:      2 * time.Minute,
		StuckTaskAge:          2 * time.Hour,
		RPCTimeout:            10 * time.Second,
		SubprocessTimeout:     10 * time.Second,
		WorktreeRemoveTimeout: 30 * time.Second,
		AgentTimeoutSeconds:   1800,
		DBPath:                "workloop.db",
	}
}

// ApplyEnv overrides fields with environment variables when set (§6.6).
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CONVEX_URL"); v != "" {
		c.ConvexURL = v
	}
	if v := os.Getenv("OPENCLAW_HOST"); v != "" {
		c.OpenclawHost = v
	}
	if v := os.Getenv("OPENCLAW_PORT"); v != "" {
		c.OpenclawPort = v
	}
	if v := os.Getenv("OPENCLAW_TOKEN"); v != "" {
		c.OpenclawToken = v
	}
	if v := os.Getenv("OPENCLAW_HTTP_URL"); v != "" {
		c.OpenclawHTTPURL = v
	}
	if v := os.Getenv("TRAP_URL"); v != "" {
		c.TrapURL = v
	}
}

// ApplyStore fills in capacity/window tunables from persisted config rows,
// the same GetConfigValue fallback idiom the teacher uses for
// bare_repo/max_parallel_agents in cmd/factory/main.go. Every field whose
// key has a stored row is overwritten, whatever value it held before; a key
// with no row leaves its field unchanged.
func (c *Config) ApplyStore(ctx context.Context, store ConfigStore) error {
	setInt := func(key string, dst *int) error {
		v, ok, err := store.GetConfigValue(ctx, key)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", key, err)
		}
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse %s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	setDuration := func(key string, dst *time.Duration) error {
		v, ok, err := store.GetConfigValue(ctx, key)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", key, err)
		}
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: parse %s=%q: %w", key, v, err)
		}
		*dst = d
		return nil
	}

	for key, dst := range map[string]*int{
		"max_agents_global":      &c.MaxAgentsGlobal,
		"max_agents_per_project": &c.MaxAgentsPerProject,
		"max_dev_agents":         &c.MaxDevAgents,
		"max_reviewer_agents":    &c.MaxReviewerAgents,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"recently_reaped_window": &c.RecentlyReapedWindow,
		"ghost_grace_period":     &c.GhostGracePeriod,
		"stuck_task_age":         &c.StuckTaskAge,
	} {
		if err := setDuration(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// GatewayBaseURL returns the effective agent-gateway base URL: the explicit
// override wins, otherwise it is built from host/port (§6.6).
func (c Config) GatewayBaseURL() string {
	if c.OpenclawHTTPURL != "" {
		return c.OpenclawHTTPURL
	}
	return fmt.Sprintf("http://%s:%s", c.OpenclawHost, c.OpenclawPort)
}
