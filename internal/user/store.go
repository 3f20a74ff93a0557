package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
)

// ストア操作のエラー。
var (
	// ErrNotFound は指定されたユーザーが存在しないことを表す。
	ErrNotFound = errors.New("ユーザーが見つかりません")
	// ErrDuplicateEmail はメールアドレスが既に使われていることを表す。
	ErrDuplicateEmail = errors.New("メールアドレスは既に登録されています")
)

// User は保存されているユーザー。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store はユーザーの永続化を担う。
type Store struct {
	db *sql.DB
}

// NewStore はSQLiteに保存するStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, roles, created_at, updated_at`

// Create はユーザーを保存する。メールアドレスは小文字に正規化する。
func (s *Store) Create(ctx context.Context, u *User) error {
	roles, err := encodeRoles(u.Roles)
	if err != nil {
		return err
	}
	u.Email = normalizeEmail(u.Email)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, roles, u.CreatedAt, u.UpdatedAt,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// GetByID はIDでユーザーを取得する。
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	return scanUser(row)
}

// List は全ユーザーを作成日時の昇順で返す。
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の読み込みに失敗: %w", err)
	}
	return users, nil
}

// Update はユーザーの全項目をIDで上書きする。
func (s *Store) Update(ctx context.Context, u *User) error {
	roles, err := encodeRoles(u.Roles)
	if err != nil {
		return err
	}
	u.Email = normalizeEmail(u.Email)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, first_name = ?, last_name = ?, roles = ?, updated_at = ?
		 WHERE id = ?`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, roles, u.UpdatedAt, u.ID,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("ユーザーの更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// Delete はIDでユーザーを削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗: %w", err)
	}
	return requireAffected(res)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u     User
		roles string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &roles, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの読み込みに失敗: %w", err)
	}
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, fmt.Errorf("ロールのデコードに失敗: %w", err)
	}
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeRoles(roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("ロールのエンコードに失敗: %w", err)
	}
	return string(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
