package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// GetActivePromptVersion returns the active PromptVersion for (role, model).
// Returns apperr.ErrNoPromptVersion if none is active -- the prompt builder
// fails loud rather than silently falling back (§4.8 step 1, §7).
func (s *Store) GetActivePromptVersion(ctx context.Context, role model.Role, promptModel string) (model.PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, model, version, content, active, created_at
		FROM prompt_versions WHERE role = ? AND model = ? AND active = 1`, string(role), promptModel)
	return scanPromptVersion(row)
}

// CreatePromptVersion inserts a new version for (role, model), assigning it
// the next version number and, if makeActive is set, atomically deactivating
// whatever was previously active in the same scope -- the partial unique
// index on (role, model) WHERE active=1 backstops this against races from
// outside this process.
func (s *Store) CreatePromptVersion(ctx context.Context, id string, role model.Role, promptModel, content string, makeActive bool, now time.Time) (model.PromptVersion, error) {
	var created model.PromptVersion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var maxVersion sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT MAX(version) FROM prompt_versions WHERE role = ? AND model = ?`, string(role), promptModel).Scan(&maxVersion)
		if err != nil {
			return fmt.Errorf("next prompt version: %w", err)
		}
		next := 1
		if maxVersion.Valid {
			next = int(maxVersion.Int64) + 1
		}

		if makeActive {
			if _, err := tx.ExecContext(ctx, `
				UPDATE prompt_versions SET active = 0 WHERE role = ? AND model = ? AND active = 1`, string(role), promptModel); err != nil {
				return fmt.Errorf("deactivate previous prompt version: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO prompt_versions (id, role, model, version, content, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(role), promptModel, next, content, boolToInt(makeActive), toMillis(now))
		if err != nil {
			return fmt.Errorf("create prompt version: %w", err)
		}

		created = model.PromptVersion{
			ID: id, Role: role, Model: promptModel, Version: next,
			Content: content, Active: makeActive, CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		return model.PromptVersion{}, err
	}
	return created, nil
}

func scanPromptVersion(row rowScanner) (model.PromptVersion, error) {
	var p model.PromptVersion
	var role string
	var active int
	var createdMs int64

	err := row.Scan(&p.ID, &role, &p.Model, &p.Version, &p.Content, &active, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PromptVersion{}, apperr.ErrNoPromptVersion
	}
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("scan prompt version: %w", err)
	}

	p.Role = model.Role(role)
	p.Active = active != 0
	p.CreatedAt = fromMillis(createdMs)
	return p, nil
}
