package history

import (
	"context"
	"testing"
	"time"

	"verify-platform/internal/consensus"
	"verify-platform/internal/source"
	"verify-platform/pkg/config"
	"verify-platform/pkg/retention"
)

func TestStoreMem_SaveGetList(t *testing.T) {
	ctx := context.Background()
	s := NewStoreMem(2)

	if err := s.Save(ctx, &consensus.Result{}); err != nil {
		t.Fatalf("Save without id: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, &consensus.Result{ID: id}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	if r, _ := s.Get(ctx, "a"); r != nil {
		t.Error("oldest record should be dropped past limit")
	}
	r, err := s.Get(ctx, "c")
	if err != nil || r == nil || r.ID != "c" {
		t.Fatalf("Get c: r=%v err=%v", r, err)
	}

	list, _ := s.List(ctx, 0)
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("List = %v", list)
	}
	list, _ = s.List(ctx, 1)
	if len(list) != 1 || list[0].ID != "c" {
		t.Errorf("List(1) = %v", list)
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, config.HistoryConfig{})
	if err != nil {
		t.Fatalf("NewStore default: %v", err)
	}
	s.Close()

	if _, err := NewStore(ctx, config.HistoryConfig{Type: "postgres"}); err == nil {
		t.Error("postgres without dsn should error")
	}
	if _, err := NewStore(ctx, config.HistoryConfig{Type: "sqlite"}); err == nil {
		t.Error("unsupported type should error")
	}
}

func TestStoreMem_Prune(t *testing.T) {
	ctx := context.Background()
	s := NewStoreMem(10)
	now := time.Now().UTC()
	_ = s.Save(ctx, &consensus.Result{ID: "old-err", FinalVerdict: source.VerdictError, Timestamp: now.Add(-2 * time.Hour)})
	_ = s.Save(ctx, &consensus.Result{ID: "old-true", FinalVerdict: source.VerdictTrue, Timestamp: now.Add(-2 * time.Hour)})
	_ = s.Save(ctx, &consensus.Result{ID: "new-err", FinalVerdict: source.VerdictError, Timestamp: now})

	n, err := s.Prune(ctx, now.Add(-time.Hour), retention.Selector{Verdicts: []string{"ERROR"}})
	if err != nil || n != 1 {
		t.Fatalf("Prune ERROR: n=%d err=%v", n, err)
	}
	if r, _ := s.Get(ctx, "old-err"); r != nil {
		t.Error("old ERROR result should be pruned")
	}

	n, _ = s.Prune(ctx, now.Add(-time.Hour), retention.Selector{Verdicts: []string{"ERROR"}, Exclude: true})
	if n != 1 {
		t.Fatalf("Prune non-ERROR: n=%d, want 1", n)
	}
	list, _ := s.List(ctx, 0)
	if len(list) != 1 || list[0].ID != "new-err" {
		t.Errorf("remaining = %v", list)
	}
}
