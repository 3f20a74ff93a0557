package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestMemoryStoreSweep は期限切れウィンドウの削除を検証する。
func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	t.Run("期限切れのキーだけが削除されること", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryStore()
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		if _, err := s.Increment(ctx, "old", base, time.Minute); err != nil {
			t.Fatalf("Increment()でエラーが発生: %v", err)
		}
		if _, err := s.Increment(ctx, "new", base.Add(30*time.Second), time.Minute); err != nil {
			t.Fatalf("Increment()でエラーが発生: %v", err)
		}

		if got := s.Sweep(base.Add(time.Minute), time.Minute); got != 1 {
			t.Errorf("Sweep() = %d, want 1", got)
		}
		if got := s.Len(); got != 1 {
			t.Errorf("Len() = %d, want 1", got)
		}
	})

	t.Run("削除後のIncrementは新しいウィンドウを開始すること", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryStore()
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for range 3 {
			if _, err := s.Increment(ctx, "k", base, time.Minute); err != nil {
				t.Fatalf("Increment()でエラーが発生: %v", err)
			}
		}
		s.Sweep(base.Add(2*time.Minute), time.Minute)

		w, err := s.Increment(ctx, "k", base.Add(2*time.Minute), time.Minute)
		if err != nil {
			t.Fatalf("Increment()でエラーが発生: %v", err)
		}
		if w.Count != 1 {
			t.Errorf("Count = %d, want 1", w.Count)
		}
		if !w.Start.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("Start = %v, want %v", w.Start, base.Add(2*time.Minute))
		}
	})
}

// TestMemoryStoreRunSweeper はコンテキストのキャンセルでスイーパーが停止することを検証する。
func TestMemoryStoreRunSweeper(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond, time.Minute)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeperが停止しなかった")
	}
}
