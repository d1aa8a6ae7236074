package store

import (
	"context"
	"testing"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

func TestUpsertSession_CreateThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := model.WorkLoopSessionKey(model.RoleDev, "t1")
	now := time.Now()

	sess := model.Session{Key: key, Status: model.SessionActive, Model: "moonshot/kimi-for-coding", InputTokens: 10, LastActiveAt: now}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetSession(ctx, key)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != model.SessionActive || got.InputTokens != 10 {
		t.Fatalf("session = %+v, want active/10 input tokens", got)
	}

	sess.Status = model.SessionCompleted
	sess.InputTokens = 42
	sess.TotalTokens = 100
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err = s.GetSession(ctx, key)
	if err != nil {
		t.Fatalf("get session after update: %v", err)
	}
	if got.Status != model.SessionCompleted || got.InputTokens != 42 || got.TotalTokens != 100 {
		t.Fatalf("session after upsert = %+v, want completed/42/100", got)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetSession(ctx, "workloop:dev:missing"); err != apperr.ErrNotFound {
		t.Fatalf("get missing session: got %v, want ErrNotFound", err)
	}
}
