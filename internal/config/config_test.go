package config

import (
	"context"
	"testing"
	"time"
)

type fakeConfigStore struct {
	values map[string]string
}

func (f *fakeConfigStore) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func TestDefaultConfig_MatchesSpecExamples(t *testing.T) {
	c := DefaultConfig()
	if c.MaxAgentsGlobal != 6 || c.MaxAgentsPerProject != 3 || c.MaxDevAgents != 4 || c.MaxReviewerAgents != 2 {
		t.Fatalf("capacity defaults = %+v, want 6/3/4/2", c)
	}
	if c.RecentlyReapedWindow != 60*time.Second {
		t.Fatalf("RecentlyReapedWindow = %s, want 60s", c.RecentlyReapedWindow)
	}
}

func TestApplyEnv_OverridesSetVars(t *testing.T) {
	t.Setenv("OPENCLAW_HOST", "gateway.internal")
	t.Setenv("OPENCLAW_PORT", "9999")

	c := DefaultConfig()
	c.ApplyEnv()
	if c.OpenclawHost != "gateway.internal" || c.OpenclawPort != "9999" {
		t.Fatalf("config after ApplyEnv = %+v", c)
	}
}

func TestApplyStore_SetsIntsAndDurations(t *testing.T) {
	store := &fakeConfigStore{values: map[string]string{
		"max_agents_global":      "10",
		"stuck_task_age":         "30m",
		"recently_reaped_window": "2m",
	}}
	c := DefaultConfig()
	if err := c.ApplyStore(context.Background(), store); err != nil {
		t.Fatalf("apply store: %v", err)
	}
	if c.MaxAgentsGlobal != 10 {
		t.Fatalf("MaxAgentsGlobal = %d, want 10", c.MaxAgentsGlobal)
	}
	if c.StuckTaskAge != 30*time.Minute {
		t.Fatalf("StuckTaskAge = %s, want 30m", c.StuckTaskAge)
	}
	if c.RecentlyReapedWindow != 2*time.Minute {
		t.Fatalf("RecentlyReapedWindow = %s, want 2m", c.RecentlyReapedWindow)
	}
	// Keys absent from the store tier leave the built-in default untouched.
	if c.MaxDevAgents != 4 {
		t.Fatalf("MaxDevAgents = %d, want unchanged default 4", c.MaxDevAgents)
	}
}

func TestApplyStore_BadValueErrors(t *testing.T) {
	store := &fakeConfigStore{values: map[string]string{"max_agents_global": "not-a-number"}}
	c := DefaultConfig()
	if err := c.ApplyStore(context.Background(), store); err == nil {
		t.Fatalf("expected a parse error for a non-numeric config value")
	}
}

func TestGatewayBaseURL_ExplicitOverrideWins(t *testing.T) {
	c := DefaultConfig()
	c.OpenclawHTTPURL = "https://gateway.example.com"
	if got := c.GatewayBaseURL(); got != "https://gateway.example.com" {
		t.Fatalf("GatewayBaseURL() = %q", got)
	}
}

func TestGatewayBaseURL_BuiltFromHostPort(t *testing.T) {
	c := DefaultConfig()
	if got := c.GatewayBaseURL(); got != "http://localhost:4317" {
		t.Fatalf("GatewayBaseURL() = %q, want http://localhost:4317", got)
	}
}
