// 営業サービスのエントリポイント。
// 案件と商談ステータス履歴の管理APIを提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yusufkaraasln/mindset-ms-case/internal/sales"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := sales.LoadConfig()

	logger, err := logging.New("sales", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := sales.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("営業サーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(ctx); err != nil {
		logger.Fatal("営業サービスの実行に失敗", zap.Error(err))
	}
}
