package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpserver"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store はユーザーの永続化。
	store *Store
	// validator は/users配下でBearerトークンを検証する。
	validator *middleware.TokenValidator
	// dummyHash は存在しないユーザーのログインでも照合時間を揃えるためのハッシュ。
	dummyHash []byte
}

// NewServer はデータベースを開き、スキーマを適用して新しいユーザーサーバーを生成する。
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

	validator, err := middleware.NewTokenValidator(cfg.JWTSecret, middleware.DefaultAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("トークン検証器の初期化に失敗: %w", err)
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("ダミーハッシュの生成に失敗: %w", err)
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
		validator: validator,
		dummyHash: dummyHash,
	}
	s.setupRoutes()

	if err := s.seedAdmin(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	})

	// ログイン（認証不要）
	s.router.POST("/login", s.handleLogin())

	users := s.router.Group("/users")
	users.Use(middleware.Identity(s.validator, s.logger))
	users.Use(middleware.RequireRoles(s.logger, authz.RoleAdmin))
	{
		// ユーザー作成
		users.POST("", s.handleCreate())
		// ユーザー一覧取得
		users.GET("", s.handleList())
		// ユーザー詳細取得
		users.GET("/:id", s.handleGetByID())
		// ユーザー更新
		users.PUT("/:id", s.handleUpdate())
		// ユーザー削除
		users.DELETE("/:id", s.handleDelete())
	}
}

// Handler はユーザーサービスのHTTPハンドラを返す。
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

// seedAdmin は管理者ユーザーが存在しなければ作成する。
func (s *Server) seedAdmin(ctx context.Context) error {
	if s.cfg.AdminPassword == "" {
		s.logger.Warn("ADMIN_PASSWORDが未設定のため管理者ユーザーを作成しません")
		return nil
	}

	_, err := s.store.GetByEmail(ctx, s.cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("管理者ユーザーの確認に失敗: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	now := time.Now().UTC()
	admin := &User{
		ID:           uuid.NewString(),
		Email:        s.cfg.AdminEmail,
		PasswordHash: string(hash),
		FirstName:    "Admin",
		LastName:     "User",
		Roles:        []string{authz.RoleAdmin},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, admin); err != nil && !errors.Is(err, ErrDuplicateEmail) {
		return fmt.Errorf("管理者ユーザーの作成に失敗: %w", err)
	}
	s.logger.Info("管理者ユーザーを作成しました", zap.String("email", admin.Email))
	return nil
}
