// API Gatewayサービスのエントリポイント。
// 全リクエストの入口となり、認証・認可・レート制限を適用したうえで
// 各バックエンドサービスへリクエストを転送する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yusufkaraasln/mindset-ms-case/internal/gateway"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New("gateway", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Gatewayサービスの実行に失敗", zap.Error(err))
	}
}
