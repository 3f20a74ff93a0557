package sales

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrNotFound は指定された案件が存在しないことを表す。
var ErrNotFound = errors.New("案件が見つかりません")

// Status は案件の商談ステータス。
type Status string

// 商談ステータス。案件はNewから始まる。
const (
	StatusNew       Status = "New"
	StatusContacted Status = "Contacted"
	StatusAgreement Status = "Agreement"
	StatusClosed    Status = "Closed"
)

// Statuses は有効なステータスの一覧。
var Statuses = []Status{StatusNew, StatusContacted, StatusAgreement, StatusClosed}

// Valid は有効なステータスかどうかを返す。
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// initialStatusNote は作成時の履歴に付けるメモ。
const initialStatusNote = "Initial status"

// Sale は保存されている案件。
type Sale struct {
	ID         string
	CustomerID string
	Status     Status
	Notes      []string
	// History はステータスの変更履歴。古い順に並ぶ。
	History   []StatusChange
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusChange はステータス履歴の1件。
type StatusChange struct {
	Status    Status
	Note      string
	UpdatedAt time.Time
}

// 一覧取得の既定値と上限。
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListParams は一覧取得の条件。新しい順に並べる。
type ListParams struct {
	// CustomerID は顧客IDの完全一致条件。
	CustomerID string
	// Status は現在のステータスの完全一致条件。
	Status Status
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// Change は案件の更新内容。nilの項目は変更しない。
type Change struct {
	// Status が現在と異なる場合は履歴を追加する。
	Status *Status
	// StatusNote は履歴に残すメモ。
	StatusNote string
	// Notes はメモ全体を置き換える。
	Notes []string
}

// Store は案件とステータス履歴の永続化を担う。
type Store struct {
	db *sql.DB
}

// NewStore はSQLiteに保存するStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const saleColumns = `id, customer_id, current_status, notes, created_at, updated_at`

// Create は案件を保存し、初期ステータスを履歴に記録する。
// ステータスが空の場合はStatusNewになる。
func (s *Store) Create(ctx context.Context, sale *Sale) error {
	if sale.Status == "" {
		sale.Status = StatusNew
	}
	if sale.Notes == nil {
		sale.Notes = []string{}
	}
	notes, err := json.Marshal(sale.Notes)
	if err != nil {
		return fmt.Errorf("メモのエンコードに失敗: %w", err)
	}

	first := StatusChange{Status: sale.Status, Note: initialStatusNote, UpdatedAt: sale.CreatedAt}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sales (`+saleColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			sale.ID, sale.CustomerID, sale.Status, string(notes), sale.CreatedAt, sale.UpdatedAt,
		); err != nil {
			return fmt.Errorf("案件の保存に失敗: %w", err)
		}
		return appendHistory(ctx, tx, sale.ID, 1, first)
	})
	if err != nil {
		return err
	}
	sale.History = []StatusChange{first}
	return nil
}

// Get はIDで案件を履歴付きで取得する。
func (s *Store) Get(ctx context.Context, id string) (*Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	history, err := s.historyFor(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.History = history[sale.ID]
	return sale, nil
}

// List は条件に一致する案件の1ページ分と、条件に一致する総件数を返す。
func (s *Store) List(ctx context.Context, p ListParams) ([]Sale, int, error) {
	var (
		conds []string
		args  []any
	)
	if p.CustomerID != "" {
		conds = append(conds, `customer_id = ?`)
		args = append(args, p.CustomerID)
	}
	if p.Status != "" {
		conds = append(conds, `current_status = ?`)
		args = append(args, p.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("案件数の取得に失敗: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+saleColumns+` FROM sales`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, p.Limit, (p.Page-1)*p.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("案件一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	sales := []Sale{}
	ids := []string{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("案件一覧の読み込みに失敗: %w", err)
	}

	history, err := s.historyFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].History = history[sales[i].ID]
	}
	return sales, total, nil
}

// Update は案件に変更を適用し、更新後の案件を返す。
// ステータスが変わった場合だけ履歴を1件追加する。
func (s *Store) Update(ctx context.Context, id string, ch Change, now time.Time) (*Sale, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current Status
		err := tx.QueryRowContext(ctx, `SELECT current_status FROM sales WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("案件の取得に失敗: %w", err)
		}

		if ch.Status != nil && *ch.Status != current {
			var seq int
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(seq), 0) + 1 FROM sale_status_history WHERE sale_id = ?`, id,
			).Scan(&seq); err != nil {
				return fmt.Errorf("履歴番号の取得に失敗: %w", err)
			}
			change := StatusChange{Status: *ch.Status, Note: ch.StatusNote, UpdatedAt: now}
			if err := appendHistory(ctx, tx, id, seq, change); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE sales SET current_status = ? WHERE id = ?`, *ch.Status, id,
			); err != nil {
				return fmt.Errorf("ステータスの更新に失敗: %w", err)
			}
		}

		if ch.Notes != nil {
			notes, err := json.Marshal(ch.Notes)
			if err != nil {
				return fmt.Errorf("メモのエンコードに失敗: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE sales SET notes = ? WHERE id = ?`, string(notes), id); err != nil {
				return fmt.Errorf("メモの更新に失敗: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sales SET updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("案件の更新に失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete はIDで案件を削除する。履歴も併せて削除される。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("案件の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// historyFor は指定した案件の履歴を連番の昇順で返す。
func (s *Store) historyFor(ctx context.Context, saleIDs []string) (map[string][]StatusChange, error) {
	out := make(map[string][]StatusChange, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(saleIDs)), ", ")
	args := make([]any, len(saleIDs))
	for i, id := range saleIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sale_id, status, note, updated_at FROM sale_status_history
		 WHERE sale_id IN (`+placeholders+`) ORDER BY sale_id, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID string
			h      StatusChange
		)
		if err := rows.Scan(&saleID, &h.Status, &h.Note, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("履歴の読み込みに失敗: %w", err)
		}
		out[saleID] = append(out[saleID], h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴の読み込みに失敗: %w", err)
	}
	return out, nil
}

// inTx はトランザクション内でfnを実行する。fnがエラーを返すとロールバックする。
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, saleID string, seq int, h StatusChange) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sale_status_history (sale_id, seq, status, note, updated_at) VALUES (?, ?, ?, ?, ?)`,
		saleID, seq, h.Status, h.Note, h.UpdatedAt,
	); err != nil {
		return fmt.Errorf("履歴の保存に失敗: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*Sale, error) {
	var (
		sale  Sale
		notes string
	)
	err := row.Scan(&sale.ID, &sale.CustomerID, &sale.Status, &notes, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("案件の読み込みに失敗: %w", err)
	}
	if err := json.Unmarshal([]byte(notes), &sale.Notes); err != nil {
		return nil, fmt.Errorf("メモのデコードに失敗: %w", err)
	}
	if sale.Notes == nil {
		sale.Notes = []string{}
	}
	return &sale, nil
}
