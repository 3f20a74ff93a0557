// ユーザーサービスのエントリポイント。
// ログインによるJWTトークンの発行と、管理者向けのユーザー管理APIを提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yusufkaraasln/mindset-ms-case/internal/user"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := user.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New("user", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := user.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("ユーザーサーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(ctx); err != nil {
		logger.Fatal("ユーザーサービスの実行に失敗", zap.Error(err))
	}
}
