// 顧客サービスのエントリポイント。
// 顧客とメモの管理APIを提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yusufkaraasln/mindset-ms-case/internal/customer"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := customer.LoadConfig()

	logger, err := logging.New("customer", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := customer.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("顧客サーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(ctx); err != nil {
		logger.Fatal("顧客サービスの実行に失敗", zap.Error(err))
	}
}
