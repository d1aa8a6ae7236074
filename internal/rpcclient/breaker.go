package rpcclient

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/madhatter5501/workloop/internal/apperr"
)

// backoffSchedule is the escalating open-state duration series, indexed by
// consecutive failure count minus one (§5, §7): 5s, 10s, 20s, 40s, holding
// at 60s. The breaker only opens from the third failure, so consecutive
// trips walk 20s, 40s, 60s. Reset to the front on the next success.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	60 * time.Second,
}

func nextBackoff(trip int) time.Duration {
	if trip < 0 {
		trip = 0
	}
	if trip >= len(backoffSchedule) {
		trip = len(backoffSchedule) - 1
	}
	return backoffSchedule[trip]
}

// breaker wraps gobreaker.CircuitBreaker with the escalating re-open
// schedule and an explicit Retry-After override from the gateway (§4.2,
// §7's "HTTP 503 Retry-After handling", §8-S6). gobreaker trips on the
// third consecutive failure, matching the spec's boundary case ("after
// three consecutive network failures, the next call within 5s×2²=20s
// returns Unavailable"); the blocking window itself is owned by
// forceOpenUntil, indexed by consecutiveFailures (tracked here rather than
// read back from gobreaker, since a failed half-open probe transitions
// gobreaker straight to Open without a fresh ReadyToTrip(counts) call to
// read the count from), so escalation continues 20s -> 40s -> 60s across
// repeated trips without needing a new CircuitBreaker instance per step.
// gobreaker's own Timeout is kept short so its internal half-open probe is
// always ready to fire by the time forceOpenUntil's longer window elapses.
type breaker struct {
	mu                  sync.Mutex
	cb                  *gobreaker.CircuitBreaker
	consecutiveFailures int
	forceOpenUntil      time.Time
}

func newBreakerState(name string) *breaker {
	return &breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Execute runs fn through the breaker, translating an open breaker (or an
// active Retry-After override) into apperr.ErrUnavailable so callers can
// treat it as "skip this cycle" without inspecting gobreaker's own types.
func (b *breaker) Execute(fn func() (any, error)) (any, error) {
	b.mu.Lock()
	if time.Now().Before(b.forceOpenUntil) {
		b.mu.Unlock()
		return nil, apperr.ErrUnavailable
	}
	b.mu.Unlock()

	result, err := b.cb.Execute(fn)
	if err == nil {
		b.mu.Lock()
		b.consecutiveFailures = 0
		b.mu.Unlock()
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperr.ErrUnavailable
	}

	b.mu.Lock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= 3 {
		until := time.Now().Add(nextBackoff(b.consecutiveFailures - 1))
		if until.After(b.forceOpenUntil) {
			b.forceOpenUntil = until
		}
	}
	b.mu.Unlock()
	return nil, err
}

// ForceOpen extends the breaker's unavailable window by d, used when the
// gateway answers with HTTP 503 and a Retry-After header (§7). It only ever
// lengthens the window, never shortens one already in effect.
func (b *breaker) ForceOpen(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(b.forceOpenUntil) {
		b.forceOpenUntil = until
	}
}
