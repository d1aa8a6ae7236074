// Package rpcclient talks to the external agent gateway over the wire
// protocol in §6.1: a single POST /rpc endpoint carrying a JSON request/
// response envelope keyed by method name, guarded by a circuit breaker so a
// gateway outage degrades to "skip this cycle" rather than a pile of
// timed-out requests (§5, §7).
package rpcclient

// Envelope is the request wrapper every call sends.
type Envelope struct {
	Type   string `json:"type"` // always "req"
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is the reply wrapper every call receives.
type Response struct {
	Type    string         `json:"type"` // always "res"
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Payload any            `json:"payload,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

// ResponseError is the semantic ("ok:false") error shape the gateway sends
// back for a request it understood but could not satisfy -- §7 distinguishes
// this from a transport failure: it never trips the circuit breaker.
type ResponseError struct {
	Message string `json:"message"`
}

// ChatSendParams is the payload for the chat.send method (§4.2 spawn()).
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Model          string `json:"model"`
	Thinking       bool   `json:"thinking,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// ChatSendResult is chat.send's success payload; SessionID carries the
// gateway's runId.
type ChatSendResult struct {
	SessionID string `json:"runId"`
}

// ChatAbortParams is the payload for chat.abort (§4.2 kill()).
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
}

// SessionInfo is one row of a sessions.list result,
// mirroring model.Session's gateway-facing fields.
type SessionInfo struct {
	SessionKey   string `json:"sessionKey"`
	Status       string `json:"status"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	TotalTokens  int    `json:"totalTokens"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// SessionKeyParams is shared by sessions.reset/compact/cancel.
type SessionKeyParams struct {
	SessionKey string `json:"sessionKey"`
}

// ConfigGetResult is config.get's payload: opaque gateway-side settings the
// supervisor never interprets beyond passing them through.
type ConfigGetResult map[string]any

// CronRegisterParams is the payload for cron.register, the setup-crons CLI
// surface's one gateway call (§6.4): a job id, a cron-syntax schedule
// already validated locally with robfig/cron/v3, and an opaque shell
// command payload the gateway runs when the schedule fires.
type CronRegisterParams struct {
	JobID    string `json:"jobId"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
}
