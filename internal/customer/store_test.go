package customer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
	"go.uber.org/zap/zaptest"
)

// newTestStore はスキーマ適用済みのStoreを返す。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sqlitedb.Open(sqlitedb.MemoryPath)
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := initSchema(context.Background(), db, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}
	return NewStore(db)
}

func newCustomer(id, email string) *Customer {
	now := time.Now().UTC()
	return &Customer{ID: id, FirstName: "First", LastName: "Last", Email: email, CreatedAt: now, UpdatedAt: now}
}

// TestStoreDeleteCascadesNotes は顧客の削除でメモも削除されることを検証する。
func TestStoreDeleteCascadesNotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Create(ctx, newCustomer("c-1", "a@example.com")); err != nil {
		t.Fatalf("Create()でエラーが発生: %v", err)
	}
	now := time.Now().UTC()
	if err := s.AddNote(ctx, "c-1", &Note{ID: "n-1", Content: "memo", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("AddNote()でエラーが発生: %v", err)
	}

	if err := s.Delete(ctx, "c-1"); err != nil {
		t.Fatalf("Delete()でエラーが発生: %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customer_notes").Scan(&n); err != nil {
		t.Fatalf("メモ数の取得に失敗: %v", err)
	}
	if n != 0 {
		t.Errorf("メモ数 = %d, want 0", n)
	}
}

// TestStoreNotes はメモ操作のエラーを検証する。
func TestStoreNotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("存在しない顧客はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		now := time.Now().UTC()
		if err := s.AddNote(ctx, "missing", &Note{ID: "n-1", Content: "x", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, ErrNotFound) {
			t.Errorf("AddNote() = %v, want %v", err, ErrNotFound)
		}
		if err := s.UpdateNote(ctx, "missing", "n-1", "x", now); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateNote() = %v, want %v", err, ErrNotFound)
		}
		if err := s.DeleteNote(ctx, "missing", "n-1", now); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteNote() = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("存在しないメモはErrNoteNotFoundになり顧客は更新されないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		c := newCustomer("c-1", "a@example.com")
		if err := s.Create(ctx, c); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		if err := s.UpdateNote(ctx, "c-1", "missing", "x", c.UpdatedAt.Add(time.Hour)); !errors.Is(err, ErrNoteNotFound) {
			t.Errorf("UpdateNote() = %v, want %v", err, ErrNoteNotFound)
		}

		got, err := s.Get(ctx, "c-1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if !got.UpdatedAt.Equal(c.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want %v（ロールバックされていない）", got.UpdatedAt, c.UpdatedAt)
		}
	})
}

// TestStoreList は一覧取得の条件を検証する。
func TestStoreList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"c-1", "c-2"} {
		if err := s.Create(ctx, newCustomer(id, id+"@example.com")); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
	}

	t.Run("並び替え項目がホワイトリスト外ならエラーになること", func(t *testing.T) {
		t.Parallel()

		_, _, err := s.List(ctx, ListParams{SortBy: "id; DROP TABLE customers", Order: "asc", Page: 1, Limit: 10})
		if err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("メールアドレスで検索できること", func(t *testing.T) {
		t.Parallel()

		got, total, err := s.List(ctx, ListParams{Search: "C-2@", SortBy: DefaultSortBy, Order: DefaultOrder, Page: 1, Limit: 10})
		if err != nil {
			t.Fatalf("List()でエラーが発生: %v", err)
		}
		if total != 1 || len(got) != 1 || got[0].ID != "c-2" {
			t.Errorf("List() = %+v, total %d", got, total)
		}
	})
}
