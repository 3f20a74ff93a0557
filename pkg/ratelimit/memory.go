package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内のメモリにウィンドウを保持するStore。
// キーごとにロックを持つため、異なるクライアント同士は競合しない。
type MemoryStore struct {
	entries sync.Map // map[string]*memoryEntry
}

type memoryEntry struct {
	mu      sync.Mutex
	start   time.Time
	count   int
	removed bool
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Increment はキーのウィンドウを不可分に更新する。
func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	for {
		v, _ := s.entries.LoadOrStore(key, &memoryEntry{})
		e := v.(*memoryEntry)

		e.mu.Lock()
		if e.removed {
			// Sweepで削除済みのエントリを掴んだので取り直す
			e.mu.Unlock()
			continue
		}
		if e.count == 0 || now.Sub(e.start) >= window {
			e.start = now
			e.count = 0
		}
		e.count++
		w := Window{Start: e.start, Count: e.count}
		e.mu.Unlock()
		return w, nil
	}
}

// Sweep は期限切れのウィンドウを削除し、削除した件数を返す。
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	s.entries.Range(func(key, value any) bool {
		e := value.(*memoryEntry)
		e.mu.Lock()
		if now.Sub(e.start) >= window {
			e.removed = true
			s.entries.CompareAndDelete(key, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// Len は保持しているキーの数を返す。
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RunSweeper はctxがキャンセルされるまでintervalごとにSweepを実行する。
func (s *MemoryStore) RunSweeper(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now, window)
		}
	}
}
