// Package sqlitedb はバックエンドサービスが使うSQLite接続を提供する。
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath はインメモリデータベースを表すパス。
const MemoryPath = ":memory:"

// Open はWALモードと外部キー制約を有効にしてSQLiteデータベースを開く。
// 日時はSQLite形式の文字列で保存するため、同じタイムゾーンの値は文字列順に並ぶ。
// インメモリデータベースは接続ごとに別のDBになるため接続数を1に制限する。
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベース接続の確認に失敗: %w", err)
	}
	return db, nil
}

// IsUniqueViolation は一意制約違反のエラーかどうかを返す。
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
