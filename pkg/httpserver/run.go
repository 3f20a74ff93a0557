// Package httpserver は全サービスで共通のHTTPサーバーの起動と停止を提供する。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// サーバーの運用パラメータ。
const (
	ShutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Task はサーバーと同じ寿命で動くバックグラウンド処理。
// ctxがキャンセルされたら速やかに戻る必要がある。
type Task func(ctx context.Context) error

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
// tasksはサーバーと並行して実行され、いずれかがエラーを返すとサーバーも停止する。
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger, tasks ...Task) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTPサーバーを起動します", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		logger.Info("HTTPサーバーを停止します", zap.String("addr", addr))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		return nil
	})
	for _, task := range tasks {
		g.Go(func() error {
			return task(ctx)
		})
	}

	return g.Wait()
}
