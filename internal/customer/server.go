package customer

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpserver"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
	"go.uber.org/zap"
)

// Server は顧客サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store は顧客とメモの永続化。
	store *Store
}

// NewServer はデータベースを開き、スキーマを適用して新しい顧客サーバーを生成する。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	db, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s, err := newServer(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// newServer は接続済みのデータベースでサーバーを組み立てる。
func newServer(ctx context.Context, cfg Config, logger *zap.Logger, db *sql.DB) (*Server, error) {
	if err := initSchema(ctx, db, logger); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	var validator *middleware.TokenValidator
	if cfg.JWTSecret != "" {
		v, err := middleware.NewTokenValidator(cfg.JWTSecret, middleware.DefaultAlgorithm)
		if err != nil {
			return nil, fmt.Errorf("トークン検証器の初期化に失敗: %w", err)
		}
		validator = v
	}

	router := gin.New()
	router.Use(middleware.ForwardedRequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router: router,
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  NewStore(db),
	}
	s.setupRoutes(validator)
	return s, nil
}

// setupRoutes はAPIルーティングを設定する。
// Gatewayが /api/customers を取り除いて転送するため、顧客APIはルートに置く。
func (s *Server) setupRoutes(validator *middleware.TokenValidator) {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "customer"})
	})

	customers := s.router.Group("/")
	customers.Use(middleware.Identity(validator, s.logger))
	customers.Use(middleware.RequireRoles(s.logger, authz.RoleAdmin, authz.RoleSalesRep))
	{
		// 顧客作成
		customers.POST("", s.handleCreate())
		// 顧客一覧取得
		customers.GET("", s.handleList())
		// 顧客詳細取得
		customers.GET("/:id", s.handleGetByID())
		// 顧客更新
		customers.PUT("/:id", s.handleUpdate())
		// 顧客削除（ADMINのみ）
		customers.DELETE("/:id", middleware.RequireRoles(s.logger, authz.RoleAdmin), s.handleDelete())
		// メモ追加
		customers.POST("/:id/notes", s.handleAddNote())
		// メモ更新
		customers.PUT("/:id/notes/:noteId", s.handleUpdateNote())
		// メモ削除
		customers.DELETE("/:id/notes/:noteId", s.handleDeleteNote())
	}
}

// Handler は顧客サービスのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, ":"+s.cfg.Port, s.router, s.logger)
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}
