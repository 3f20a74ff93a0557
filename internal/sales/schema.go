package sales

import (
	"context"
	"database/sql"
	"embed"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/migration"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// initSchema はマイグレーションを実行して案件テーブルを作成する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return migration.Run(ctx, db, migrationsFS, "migrations", logger)
}
