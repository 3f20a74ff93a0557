// ヘルスチェックサービスのエントリポイント。
// プロセスの稼働時間とランタイムの状態を返す。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yusufkaraasln/mindset-ms-case/internal/healthcheck"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := healthcheck.LoadConfig()

	logger, err := logging.New("health-check", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := healthcheck.NewServer(cfg, logger).Run(ctx); err != nil {
		logger.Fatal("ヘルスチェックサービスの実行に失敗", zap.Error(err))
	}
}
