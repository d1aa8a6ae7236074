package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// AddSignal inserts a new signal.
func (s *Store) AddSignal(ctx context.Context, sig model.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (id, task_id, session_key, agent_id, kind, severity, message,
			blocking, responded_at, response, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.TaskID, sig.SessionKey, sig.AgentID, string(sig.Kind), string(sig.Severity), sig.Message,
		boolToInt(sig.Blocking), nullableMillis(sig.RespondedAt), sig.Response, nullableMillis(sig.DeliveredAt), toMillis(sig.CreatedAt))
	if err != nil {
		return fmt.Errorf("add signal %s: %w", sig.ID, err)
	}
	return nil
}

// GetSignal fetches one signal by id.
func (s *Store) GetSignal(ctx context.Context, id string) (model.Signal, error) {
	row := s.db.QueryRowContext(ctx, signalSelect+` WHERE id = ?`, id)
	return scanSignal(row)
}

// ListPendingBlocking returns every unanswered blocking signal for a
// project, ordered critical-first then newest-first, the exact order the
// gate aggregator and triage machine consume (§4.9 pendingSignals).
func (s *Store) ListPendingBlocking(ctx context.Context, projectID string) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+`
		JOIN tasks ON tasks.id = signals.task_id
		WHERE tasks.project_id = ? AND signals.blocking = 1 AND signals.responded_at IS NULL
		ORDER BY signals.created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list pending signals for project %s: %w", projectID, err)
	}
	defer rows.Close()

	sigs, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	sortBySeverityThenNewest(sigs)
	return sigs, nil
}

func sortBySeverityThenNewest(sigs []model.Signal) {
	// insertion sort is fine at the small N a single project's open signals
	// realistically reaches; severityRank then created_at descending.
	for i := 1; i < len(sigs); i++ {
		j := i
		for j > 0 && less(sigs[j], sigs[j-1]) {
			sigs[j], sigs[j-1] = sigs[j-1], sigs[j]
			j--
		}
	}
}

func less(a, b model.Signal) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() < b.Severity.Rank()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// ListSignalsByTask returns every signal raised against a task, oldest
// first, the source the work phase's prompt builder reads prior
// question/answer pairs from (§4.8 Inputs).
func (s *Store) ListSignalsByTask(ctx context.Context, taskID string) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+`
		WHERE signals.task_id = ? ORDER BY signals.created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list signals for task %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// RespondSignal marks a signal answered, returning apperr.ErrAlreadyResponded
// if a response already landed -- the idempotent-by-actor guarantee triage
// operations rely on (§8 idempotence cases).
func (s *Store) RespondSignal(ctx context.Context, signalID, response string, respondedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT responded_at FROM signals WHERE id = ?`, signalID).Scan(&existing)
		if err == sql.ErrNoRows {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("respond signal %s: %w", signalID, err)
		}
		if existing.Valid {
			return apperr.ErrAlreadyResponded
		}

		_, err = tx.ExecContext(ctx, `UPDATE signals SET responded_at=?, response=? WHERE id=?`,
			toMillis(respondedAt), response, signalID)
		if err != nil {
			return fmt.Errorf("respond signal %s: %w", signalID, err)
		}
		return nil
	})
}

// MarkSignalDelivered records that a signal was surfaced to the coordinator,
// so repeated gate computations don't re-notify on it.
func (s *Store) MarkSignalDelivered(ctx context.Context, signalID string, deliveredAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE signals SET delivered_at=? WHERE id=? AND delivered_at IS NULL`,
		toMillis(deliveredAt), signalID)
	if err != nil {
		return fmt.Errorf("mark signal delivered %s: %w", signalID, err)
	}
	return nil
}

const signalSelect = `SELECT signals.id, signals.task_id, signals.session_key, signals.agent_id,
	signals.kind, signals.severity, signals.message, signals.blocking, signals.responded_at,
	signals.response, signals.delivered_at, signals.created_at
	FROM signals`

func scanSignal(row rowScanner) (model.Signal, error) {
	var sig model.Signal
	var kind, severity string
	var blocking int
	var respondedMs, deliveredMs sql.NullInt64
	var createdMs int64

	err := row.Scan(&sig.ID, &sig.TaskID, &sig.SessionKey, &sig.AgentID, &kind, &severity, &sig.Message,
		&blocking, &respondedMs, &sig.Response, &deliveredMs, &createdMs)
	if err == sql.ErrNoRows {
		return model.Signal{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Signal{}, fmt.Errorf("scan signal: %w", err)
	}

	sig.Kind = model.SignalKind(kind)
	sig.Severity = model.SignalSeverity(severity)
	sig.Blocking = blocking != 0
	sig.RespondedAt = scanNullableTime(respondedMs)
	sig.DeliveredAt = scanNullableTime(deliveredMs)
	sig.CreatedAt = fromMillis(createdMs)
	return sig, nil
}

func scanSignals(rows *sql.Rows) ([]model.Signal, error) {
	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
