// Package healthcheck はプロセスの稼働状況を返すヘルスチェックサービスを実装する。
package healthcheck

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpserver"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"go.uber.org/zap"
)

// statusUp は稼働中を表すステータス。
const statusUp = "UP"

// Config はヘルスチェックサービスの設定。
type Config struct {
	Port     string
	Env      string
	LogLevel string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return Config{
		Port:     envOr("PORT", "8081"),
		Env:      envOr("APP_ENV", "development"),
		LogLevel: envOr("LOG_LEVEL", "info"),
	}
}

// Report はヘルスチェックのレスポンス。
type Report struct {
	Status     string      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Uptime     float64     `json:"uptime"`
	Goroutines int         `json:"goroutines"`
	Memory     MemoryUsage `json:"memoryUsage"`
}

// MemoryUsage はGoランタイムのメモリ使用量（バイト）。
type MemoryUsage struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
}

// Server はヘルスチェックサービスのHTTPサーバー。
type Server struct {
	router    *gin.Engine
	cfg       Config
	logger    *zap.Logger
	startedAt time.Time
	now       func() time.Time
}

// NewServer は新しいヘルスチェックサーバーを生成する。
func NewServer(cfg Config, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.ForwardedRequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router:    router,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
	// Gatewayは /api/health-check を取り除いて / に転送する
	router.GET("/", s.handleReport())
	router.GET("/health", s.handleReport())
	return s
}

// Handler はヘルスチェックサービスのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, ":"+s.cfg.Port, s.router, s.logger)
}

// handleReport は稼働時間とランタイムの状態を返すハンドラを返す。
func (s *Server) handleReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.report())
	}
}

func (s *Server) report() Report {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	now := s.now()
	return Report{
		Status:     statusUp,
		Timestamp:  now.UTC(),
		Uptime:     now.Sub(s.startedAt).Seconds(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryUsage{
			HeapAlloc:  m.HeapAlloc,
			HeapInuse:  m.HeapInuse,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	}
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
