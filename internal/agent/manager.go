// Package agent tracks live agent runs in memory only -- the sessions table
// in internal/store is the ground truth for "is this still running" (§3,
// §9 design notes); this map exists purely so a single process instance can
// answer "which tasks does a fresh cycle already believe have an agent"
// without round-tripping the store on every check. Grounded on
// background.go's mutex-protected map-of-goroutines shape and
// agents/spawner.go's session-oriented spawn/kill split, generalized from a
// fixed set of background agent types to one handle per (task, role).
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/rpcclient"
)

// SessionReader is the subset of internal/store the manager needs to check
// session liveness during reap() without importing the store package
// directly (keeping the dependency direction store -> nothing, agent ->
// store interface only).
type SessionReader interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
}

// reapedEntry records when a handle was removed, so is_recently_reaped can
// answer without a store round trip (§4.2).
type reapedEntry struct {
	role     model.Role
	reapedAt time.Time
}

// Manager is the agent lifecycle manager (§4.2).
type Manager struct {
	rpc     *rpcclient.Client
	store   SessionReader
	cooldown time.Duration

	mu      sync.RWMutex
	handles map[string]model.AgentHandle // keyed by task id
	reaped  map[string]reapedEntry       // keyed by "task_id:role"
}

// NewManager constructs a Manager. cooldown is the recently-reaped window
// (default 60s per §4.2; configurable per the Open Question resolution
// recorded in DESIGN.md).
func NewManager(rpc *rpcclient.Client, store SessionReader, cooldown time.Duration) *Manager {
	return &Manager{
		rpc:      rpc,
		store:    store,
		cooldown: cooldown,
		handles:  make(map[string]model.AgentHandle),
		reaped:   make(map[string]reapedEntry),
	}
}

// Spawn issues chat.send and, on success, registers a handle (§4.2). On
// failure the caller is responsible for reverting the task to ready. The
// returned runID is the gateway's own chat.send identifier (distinct from
// the stable session key), which callers persist onto Task.SessionID. A
// second Spawn for a task and role whose handle is still tracked is rejected.
func (m *Manager) Spawn(ctx context.Context, taskID, projectID string, role model.Role, message, spawnModel string, thinking bool, timeoutSeconds int, now time.Time) (model.AgentHandle, string, error) {
	sessionKey := model.WorkLoopSessionKey(role, taskID)

	m.mu.RLock()
	existing, tracked := m.handles[taskID]
	m.mu.RUnlock()
	if tracked && existing.Role == role {
		return model.AgentHandle{}, "", fmt.Errorf("spawn %s/%s: handle already present", role, taskID)
	}

	result, err := m.rpc.ChatSend(ctx, rpcclient.ChatSendParams{
		SessionKey:     sessionKey,
		Message:        message,
		Model:          spawnModel,
		Thinking:       thinking,
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		return model.AgentHandle{}, "", fmt.Errorf("spawn %s/%s: %w", role, taskID, err)
	}

	handle := model.AgentHandle{
		TaskID:         taskID,
		ProjectID:      projectID,
		Role:           role,
		SessionKey:     sessionKey,
		SpawnedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	m.handles[taskID] = handle
	m.mu.Unlock()
	return handle, result.SessionID, nil
}

// Has reports whether a handle is currently tracked for a task.
func (m *Manager) Has(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handles[taskID]
	return ok
}

// Get returns the tracked handle for a task, if any.
func (m *Manager) Get(taskID string) (model.AgentHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[taskID]
	return h, ok
}

// Active returns every tracked handle.
func (m *Manager) Active() []model.AgentHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AgentHandle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	return out
}

// ActiveCount counts tracked handles matching an optional project/role
// filter, the primitive the admission controller is built on (§4.7). An
// empty projectID or role means "no filter on that dimension".
func (m *Manager) ActiveCount(projectID string, role model.Role) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, h := range m.handles {
		if h.Matches(projectID, role) {
			n++
		}
	}
	return n
}

// IsRecentlyReaped reports whether a handle for (taskID, role) was reaped
// within the cooldown window, so the work/review phases don't immediately
// respawn the same role on the same task (§4.2, §4.4 step 1).
func (m *Manager) IsRecentlyReaped(taskID string, role model.Role, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.reaped[reapedKey(taskID, role)]
	if !ok {
		return false
	}
	return now.Sub(entry.reapedAt) < m.cooldown
}

// Reap examines every tracked handle's session row and removes any whose
// session has completed or gone stale, recording a recently-reaped entry
// for each (§4.2 reap()). Handles with no session row yet are left alone --
// that means the gateway hasn't caught up, not that the agent is gone.
func (m *Manager) Reap(ctx context.Context, now time.Time) ([]model.AgentHandle, error) {
	m.mu.RLock()
	candidates := make([]model.AgentHandle, 0, len(m.handles))
	for _, h := range m.handles {
		candidates = append(candidates, h)
	}
	m.mu.RUnlock()

	var reaped []model.AgentHandle
	for _, h := range candidates {
		sess, err := m.store.GetSession(ctx, h.SessionKey)
		if err != nil {
			if err == apperr.ErrNotFound {
				continue // still spawning
			}
			return reaped, fmt.Errorf("reap: get session %s: %w", h.SessionKey, err)
		}
		if !sess.Reaped() {
			continue
		}

		m.mu.Lock()
		delete(m.handles, h.TaskID)
		m.reaped[reapedKey(h.TaskID, h.Role)] = reapedEntry{role: h.Role, reapedAt: now}
		m.mu.Unlock()
		reaped = append(reaped, h)
	}
	return reaped, nil
}

// Kill issues chat.abort for a tracked task's handle. It does not remove the
// handle -- Reap does that once the session row reflects the abort (§4.2).
func (m *Manager) Kill(ctx context.Context, taskID string) error {
	h, ok := m.Get(taskID)
	if !ok {
		return nil
	}
	if err := m.rpc.ChatAbort(ctx, h.SessionKey); err != nil {
		return fmt.Errorf("kill %s: %w", taskID, err)
	}
	return nil
}

// KillAll aborts every tracked handle, best-effort, returning the first
// error encountered (if any) after attempting all of them.
func (m *Manager) KillAll(ctx context.Context) error {
	var firstErr error
	for _, h := range m.Active() {
		if err := m.rpc.ChatAbort(ctx, h.SessionKey); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kill %s: %w", h.TaskID, err)
		}
	}
	return firstErr
}

func reapedKey(taskID string, role model.Role) string {
	return taskID + ":" + string(role)
}
