package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
)

// ストア操作のエラー。
var (
	// ErrNotFound は指定された顧客が存在しないことを表す。
	ErrNotFound = errors.New("顧客が見つかりません")
	// ErrNoteNotFound は指定されたメモが顧客に存在しないことを表す。
	ErrNoteNotFound = errors.New("メモが見つかりません")
	// ErrDuplicateEmail はメールアドレスが既に使われていることを表す。
	ErrDuplicateEmail = errors.New("メールアドレスは既に登録されています")
)

// Customer は保存されている顧客。
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	Notes     []Note
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName は「名 姓」形式の氏名を返す。
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Note は顧客に紐づくメモ。
type Note struct {
	ID        string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// 一覧の並び替えに使える項目とカラムの対応。
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"firstName": "first_name",
	"lastName":  "last_name",
	"email":     "email",
	"company":   "company",
}

// 一覧取得の既定値と上限。
const (
	DefaultSortBy = "createdAt"
	DefaultOrder  = "desc"
	DefaultLimit  = 10
	MaxLimit      = 100
)

// ListParams は一覧取得の条件。
type ListParams struct {
	// Search は氏名・会社名・メールアドレスの部分一致検索語。
	Search string
	// Company は会社名の完全一致条件。
	Company string
	// SortBy は並び替えの項目。sortColumnsのキーのいずれか。
	SortBy string
	// Order は "asc" または "desc"。
	Order string
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// Store は顧客とメモの永続化を担う。
type Store struct {
	db *sql.DB
}

// NewStore はSQLiteに保存するStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const customerColumns = `id, first_name, last_name, email, phone, company, created_at, updated_at`

// Create は顧客を保存する。メールアドレスは小文字に正規化する。
func (s *Store) Create(ctx context.Context, c *Customer) error {
	c.Email = normalizeEmail(c.Email)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.CreatedAt, c.UpdatedAt,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("顧客の保存に失敗: %w", err)
	}
	c.Notes = []Note{}
	return nil
}

// Get はIDで顧客をメモ付きで取得する。
func (s *Store) Get(ctx context.Context, id string) (*Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, err
	}
	notes, err := s.notesFor(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Notes = notes[c.ID]
	if c.Notes == nil {
		c.Notes = []Note{}
	}
	return c, nil
}

// List は条件に一致する顧客の1ページ分と、条件に一致する総件数を返す。
func (s *Store) List(ctx context.Context, p ListParams) ([]Customer, int, error) {
	column, ok := sortColumns[p.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("並び替え項目が不正です: %q", p.SortBy)
	}
	direction := "DESC"
	if p.Order == "asc" {
		direction = "ASC"
	}

	var (
		conds []string
		args  []any
	)
	if p.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(p.Search)) + "%"
		conds = append(conds, `(LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\'
			OR LOWER(company) LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if p.Company != "" {
		conds = append(conds, `company = ?`)
		args = append(args, p.Company)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("顧客数の取得に失敗: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM customers%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		customerColumns, where, column, direction, direction)
	rows, err := s.db.QueryContext(ctx, query, append(args, p.Limit, (p.Page-1)*p.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("顧客一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	customers := []Customer{}
	ids := []string{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("顧客一覧の読み込みに失敗: %w", err)
	}

	notes, err := s.notesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range customers {
		customers[i].Notes = notes[customers[i].ID]
		if customers[i].Notes == nil {
			customers[i].Notes = []Note{}
		}
	}
	return customers, total, nil
}

// Update は顧客の項目をIDで上書きする。メモは変更しない。
func (s *Store) Update(ctx context.Context, c *Customer) error {
	c.Email = normalizeEmail(c.Email)
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?, updated_at = ?
		 WHERE id = ?`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.UpdatedAt, c.ID,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("顧客の更新に失敗: %w", err)
	}
	return requireAffected(res, ErrNotFound)
}

// Delete はIDで顧客を削除する。メモも併せて削除される。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("顧客の削除に失敗: %w", err)
	}
	return requireAffected(res, ErrNotFound)
}

// AddNote は顧客にメモを追加し、顧客の更新日時を進める。
func (s *Store) AddNote(ctx context.Context, customerID string, n *Note) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchCustomer(ctx, tx, customerID, n.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customer_notes (id, customer_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			n.ID, customerID, n.Content, n.CreatedAt, n.UpdatedAt,
		); err != nil {
			return fmt.Errorf("メモの保存に失敗: %w", err)
		}
		return nil
	})
}

// UpdateNote は顧客のメモの本文を更新する。
func (s *Store) UpdateNote(ctx context.Context, customerID, noteID, content string, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchCustomer(ctx, tx, customerID, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE customer_notes SET content = ?, updated_at = ? WHERE id = ? AND customer_id = ?`,
			content, now, noteID, customerID,
		)
		if err != nil {
			return fmt.Errorf("メモの更新に失敗: %w", err)
		}
		return requireAffected(res, ErrNoteNotFound)
	})
}

// DeleteNote は顧客のメモを削除する。
func (s *Store) DeleteNote(ctx context.Context, customerID, noteID string, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchCustomer(ctx, tx, customerID, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM customer_notes WHERE id = ? AND customer_id = ?`, noteID, customerID)
		if err != nil {
			return fmt.Errorf("メモの削除に失敗: %w", err)
		}
		return requireAffected(res, ErrNoteNotFound)
	})
}

// notesFor は指定した顧客のメモを作成日時の昇順で返す。
func (s *Store) notesFor(ctx context.Context, customerIDs []string) (map[string][]Note, error) {
	out := make(map[string][]Note, len(customerIDs))
	if len(customerIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(customerIDs)), ", ")
	args := make([]any, len(customerIDs))
	for i, id := range customerIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, id, content, created_at, updated_at FROM customer_notes
		 WHERE customer_id IN (`+placeholders+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("メモの取得に失敗: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			customerID string
			n          Note
		)
		if err := rows.Scan(&customerID, &n.ID, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("メモの読み込みに失敗: %w", err)
		}
		out[customerID] = append(out[customerID], n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メモの読み込みに失敗: %w", err)
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

// touchCustomer は顧客の更新日時を進める。顧客が存在しない場合はErrNotFoundを返す。
func touchCustomer(ctx context.Context, tx *sql.Tx, customerID string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE customers SET updated_at = ? WHERE id = ?`, now, customerID)
	if err != nil {
		return fmt.Errorf("顧客の更新に失敗: %w", err)
	}
	return requireAffected(res, ErrNotFound)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("顧客の読み込みに失敗: %w", err)
	}
	return &c, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// escapeLike はLIKEのワイルドカードをエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
