package sales

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

// Server は営業サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store は案件と履歴の永続化。
	store *Store
	// customers は顧客の存在確認。nilなら確認しない。
	customers CustomerChecker
}

// NewServer はデータベースを開き、スキーマを適用して新しい営業サーバーを生成する。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	db, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	var customers CustomerChecker
	if cfg.CustomerServiceURL != "" {
		customers = newCustomerClient(cfg.CustomerServiceURL)
	}
	s, err := newServer(ctx, cfg, logger, db, customers)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// newServer は接続済みのデータベースでサーバーを組み立てる。
func newServer(ctx context.Context, cfg Config, logger *zap.Logger, db *sql.DB, customers CustomerChecker) (*Server, error) {
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
		router:    router,
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     NewStore(db),
		customers: customers,
	}
	s.setupRoutes(validator)
	return s, nil
}

// setupRoutes はAPIルーティングを設定する。
// Gatewayが /api/sales を取り除いて転送するため、案件APIはルートに置く。
func (s *Server) setupRoutes(validator *middleware.TokenValidator) {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "sales"})
	})

	sales := s.router.Group("/")
	sales.Use(middleware.Identity(validator, s.logger))
	sales.Use(middleware.RequireRoles(s.logger, authz.RoleAdmin, authz.RoleSalesRep))
	{
		// 案件作成
		sales.POST("", s.handleCreate())
		// 案件一覧取得
		sales.GET("", s.handleList())
		// 案件詳細取得
		sales.GET("/:id", s.handleGetByID())
		// 案件更新（ステータス変更は履歴に残る）
		sales.PUT("/:id", s.handleUpdate())
		// 案件削除
		sales.DELETE("/:id", s.handleDelete())
	}
}

// Handler は営業サービスのHTTPハンドラを返す。
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
