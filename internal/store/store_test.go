package store

import (
	"context"
	"fmt"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	turn := Turn{
		Question: "what changed?",
		Answer:   "rates went up",
		Sources:  []string{"https://a.example/1", "https://b.example/2"},
	}
	if err := s.Append(ctx, "sess-a", turn); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.Recent(ctx, "sess-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("want 1 turn, got %d", len(turns))
	}
	got := turns[0]
	if got.Question != turn.Question || got.Answer != turn.Answer {
		t.Errorf("turn = %+v", got)
	}
	if len(got.Sources) != 2 || got.Sources[1] != "https://b.example/2" {
		t.Errorf("sources = %v", got.Sources)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func Test_Store_NilSourcesRoundTripEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess", Turn{Question: "q", Answer: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	turns, err := s.Recent(ctx, "sess", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if turns[0].Sources == nil || len(turns[0].Sources) != 0 {
		t.Errorf("sources = %#v, want empty slice", turns[0].Sources)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		if err := s.Append(ctx, "sess-b", Turn{Question: fmt.Sprintf("q%d", i), Answer: "a"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.Recent(ctx, "sess-b", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("want 4 turns, got %d", len(turns))
	}
	if turns[0].Question != "q2" || turns[3].Question != "q5" {
		t.Errorf("want q2..q5 oldest first, got %s..%s", turns[0].Question, turns[3].Question)
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "x", Turn{Question: "from x"}); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, "y", Turn{Question: "from y"}); err != nil {
		t.Fatalf("append y: %v", err)
	}

	turnsX, err := s.Recent(ctx, "x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	turnsY, err := s.Recent(ctx, "y", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}
	if len(turnsX) != 1 || turnsX[0].Question != "from x" {
		t.Errorf("session x isolation failed: got %v", turnsX)
	}
	if len(turnsY) != 1 || turnsY[0].Question != "from y" {
		t.Errorf("session y isolation failed: got %v", turnsY)
	}
}

func Test_Store_EmptySessionReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	turns, err := s.Recent(context.Background(), "empty", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("want 0 turns, got %d", len(turns))
	}
}

func Test_Store_Forget(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"gone", "kept"} {
		if err := s.Append(ctx, id, Turn{Question: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Forget(ctx, "gone"); err != nil {
		t.Fatalf("forget: %v", err)
	}

	gone, _ := s.Recent(ctx, "gone", 10)
	kept, _ := s.Recent(ctx, "kept", 10)
	if len(gone) != 0 {
		t.Errorf("forgotten session still has %d turns", len(gone))
	}
	if len(kept) != 1 {
		t.Errorf("other session lost its turns: %v", kept)
	}
}
