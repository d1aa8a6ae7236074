// Package apperr collects the typed error kinds the spec calls out in §7 so
// callers can branch with errors.Is/errors.As instead of string matching,
// matching the teacher's fmt.Errorf("...: %w", err) wrapping idiom.
package apperr

import "errors"

var (
	// ErrUnavailable is returned by the RPC client while its circuit
	// breaker is open; callers treat it as "skip this cycle" (§7).
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrAlreadyResponded is returned by Signal.Respond when the signal
	// already carries a response (§8 idempotence).
	ErrAlreadyResponded = errors.New("signal already responded")

	// ErrDependencyCycle is returned when adding a TaskDependency edge
	// would create a cycle (§3, §8 property 3).
	ErrDependencyCycle = errors.New("dependency would create a cycle")

	// ErrClaimConflict is returned when a claim transition lost a race to
	// another claimant (§5, §7 "store conflict").
	ErrClaimConflict = errors.New("task already claimed")

	// ErrNotFound is returned by point reads that find nothing.
	ErrNotFound = errors.New("not found")

	// ErrNoPromptVersion is returned when the prompt builder cannot find
	// an active PromptVersion for a (role, model) scope (§4.8 step 1, §7).
	ErrNoPromptVersion = errors.New("no active prompt version")
)

// GatewayError wraps a semantic ("ok:false") error returned by the agent
// gateway (§7). It never triggers the circuit breaker.
type GatewayError struct {
	Method  string
	Message string
}

func (e *GatewayError) Error() string {
	return "gateway error (" + e.Method + "): " + e.Message
}
