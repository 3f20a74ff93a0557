// Package migration はSQLiteデータベースのスキーマをバージョン管理する。
//
// マイグレーションは fs.FS 上の "000001_description.up.sql" 形式のファイルで、
// 適用時の内容のSHA-256をschema_migrationsに記録する。適用済みのファイルが
// 後から書き換えられた場合は起動を止める。
package migration

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// マイグレーションのエラー。
var (
	// ErrInvalidFile はファイル名やバージョンが不正なことを表す。
	ErrInvalidFile = errors.New("マイグレーションファイルが不正です")
	// ErrChecksumMismatch は適用済みのマイグレーションの内容が変わったことを表す。
	ErrChecksumMismatch = errors.New("適用済みのマイグレーションが変更されています")
)

// fileNamePattern はup.sqlファイル名の形式。
var fileNamePattern = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_]+)\.up\.sql$`)

// Migration は1つのスキーマ変更。
type Migration struct {
	Version  int
	Name     string
	Checksum string
	SQL      string
}

// State はマイグレーションの適用状態。
type State struct {
	Migration
	// AppliedAt は適用日時。未適用ならゼロ値。
	AppliedAt time.Time
}

// Applied は適用済みかどうかを返す。
func (s State) Applied() bool {
	return !s.AppliedAt.IsZero()
}

// Load はdir直下のup.sqlファイルを読み込み、バージョン順に返す。
// down.sqlなどup.sql以外のファイルは無視する。
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリ %s の読み込みに失敗: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFile, entry.Name())
		}
		version, err := strconv.Atoi(m[1])
		if err != nil || version < 1 {
			return nil, fmt.Errorf("%w: バージョンは1以上の整数です: %s", ErrInvalidFile, entry.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: バージョン %06d が重複しています: %s, %s", ErrInvalidFile, version, other, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Checksum: checksum(content),
			SQL:      string(content),
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

// Migrator は読み込み済みのマイグレーションをデータベースに適用する。
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	logger     *zap.Logger
	now        func() time.Time
}

// New はfsysのdirからマイグレーションを読み込んでMigratorを生成する。
func New(db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) (*Migrator, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return &Migrator{
		db:         db,
		migrations: migrations,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run はfsysのdirにあるマイグレーションのうち未適用のものを適用する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) error {
	m, err := New(db, fsys, dir, logger)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}

// Up は未適用のマイグレーションをバージョン順に1つずつトランザクションで適用し、
// 適用したバージョンを返す。適用済みのファイルの内容が記録と異なる場合は
// 何も適用せずにErrChecksumMismatchを返す。
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	states, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, st := range states {
		if st.Applied() {
			continue
		}
		if err := m.apply(ctx, st.Migration); err != nil {
			return applied, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", st.Version, st.Name, err)
		}
		m.logger.Info("マイグレーションを適用しました",
			zap.Int("version", st.Version),
			zap.String("name", st.Name),
		)
		applied = append(applied, st.Version)
	}
	return applied, nil
}

// Status は読み込んだ各マイグレーションの適用状態をバージョン順に返す。
func (m *Migrator) Status(ctx context.Context) ([]State, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	records, err := m.records(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]State, 0, len(m.migrations))
	for _, mig := range m.migrations {
		st := State{Migration: mig}
		if rec, ok := records[mig.Version]; ok {
			if rec.checksum != mig.Checksum {
				return nil, fmt.Errorf("%w: %06d_%s", ErrChecksumMismatch, mig.Version, mig.Name)
			}
			st.AppliedAt = rec.appliedAt
			delete(records, mig.Version)
		}
		states = append(states, st)
	}
	for version := range records {
		m.logger.Warn("ファイルのない適用済みマイグレーションがあります", zap.Int("version", version))
	}
	return states, nil
}

// record はschema_migrationsの1行。
type record struct {
	checksum  string
	appliedAt time.Time
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}
	return nil
}

func (m *Migrator) records(ctx context.Context) (map[int]record, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int]record)
	for rows.Next() {
		var (
			version int
			rec     record
		)
		if err := rows.Scan(&version, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("適用済みバージョンの読み込みに失敗: %w", err)
		}
		out[version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("適用済みバージョンの読み込みに失敗: %w", err)
	}
	return out, nil
}

// apply は1つのマイグレーションとその記録を同じトランザクションで書き込む。
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		mig.Version, mig.Name, mig.Checksum, m.now(),
	); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
