package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// UpsertSession writes the gateway's latest view of a session's liveness.
// This table -- not the agent manager's in-memory map -- is the ground
// truth ghost detection reads (§4.2, §9 design notes).
func (s *Store) UpsertSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, status, model, input_tokens, output_tokens, total_tokens, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			status=excluded.status, model=excluded.model, input_tokens=excluded.input_tokens,
			output_tokens=excluded.output_tokens, total_tokens=excluded.total_tokens,
			last_active_at=excluded.last_active_at`,
		sess.Key, string(sess.Status), sess.Model, sess.InputTokens, sess.OutputTokens, sess.TotalTokens, toMillis(sess.LastActiveAt))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.Key, err)
	}
	return nil
}

// GetSession fetches one session by its key.
func (s *Store) GetSession(ctx context.Context, key string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_key, status, model, input_tokens, output_tokens, total_tokens, last_active_at
		FROM sessions WHERE session_key = ?`, key)

	var sess model.Session
	var status string
	var lastActiveMs int64
	err := row.Scan(&sess.Key, &status, &sess.Model, &sess.InputTokens, &sess.OutputTokens, &sess.TotalTokens, &lastActiveMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", key, err)
	}
	sess.Status = model.SessionStatus(status)
	sess.LastActiveAt = fromMillis(lastActiveMs)
	return sess, nil
}
