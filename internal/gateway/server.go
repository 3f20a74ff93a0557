package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpserver"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/ratelimit"
	"go.uber.org/zap"
)

// Ginコンテキストのキー。
const (
	contextKeyRoute      = "gateway_route"
	contextKeySubPath    = "gateway_sub_path"
	contextKeyRouteLabel = "gateway_route_label"
)

// sweepInterval はメモリ上のレート制限カウンタを掃除する間隔。
const sweepInterval = time.Minute

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// registry は接頭辞からバックエンドを解決するサービスレジストリ。
	registry *Registry
	// metrics はPrometheusメトリクス。
	metrics *Metrics
	// proxy はバックエンドへのリバースプロキシ。
	proxy *proxy
	// authenticate はBearerトークンを検証するステージ。
	authenticate gin.HandlerFunc
	// roleChecks はルート名ごとのロール認可ステージ。
	roleChecks map[string]gin.HandlerFunc
	// memoryStore はインメモリのレート制限カウンタ。Redis使用時は nil。
	memoryStore *ratelimit.MemoryStore
	// redisClient はレート制限カウンタを共有するRedisクライアント。メモリ使用時は nil。
	redisClient *redis.Client
}

// NewServer は設定からGatewayサーバーを生成する。
// RATE_LIMIT_BACKEND=redis の場合は全Gatewayインスタンスでカウンタを共有する。
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	var (
		store       ratelimit.Store
		memoryStore *ratelimit.MemoryStore
		redisClient *redis.Client
	)
	switch cfg.RateLimitBackend {
	case RateLimitBackendRedis:
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = ratelimit.NewRedisStore(redisClient)
	default:
		memoryStore = ratelimit.NewMemoryStore()
		store = memoryStore
	}

	s, err := newServer(cfg, logger, store)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	s.memoryStore = memoryStore
	s.redisClient = redisClient
	return s, nil
}

// newServer は指定されたレート制限ストアでGatewayサーバーを組み立てる。
func newServer(cfg Config, logger *zap.Logger, store ratelimit.Store) (*Server, error) {
	registry, err := NewRegistry(cfg.Routes)
	if err != nil {
		return nil, err
	}

	validator, err := middleware.NewTokenValidator(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("トークン検証器の初期化に失敗: %w", err)
	}

	limiter, err := ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("レート制限の初期化に失敗: %w", err)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("%w: TRUSTED_PROXIES: %w", ErrInvalidConfig, err)
	}

	metrics := NewMetrics()
	s := &Server{
		router:       router,
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		proxy:        newProxy(cfg.ProxyTimeout, logger, metrics),
		authenticate: middleware.Authenticate(validator, logger),
		roleChecks:   make(map[string]gin.HandlerFunc),
	}
	for _, route := range registry.Routes() {
		if len(route.Roles) == 0 {
			continue
		}
		if !route.RequiresAuth {
			logger.Warn("認証不要のルートに指定されたロールは無視されます",
				zap.String("route", route.Name),
				zap.Strings("roles", route.Roles),
			)
			continue
		}
		s.roleChecks[route.Name] = middleware.RequireRoles(logger, route.Roles...)
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.SecureHeaders())
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(metrics.middleware())
	router.Use(middleware.RateLimit(limiter, logger))
	s.setupRoutes()

	return s, nil
}

// setupRoutes はルーティングを設定する。
// /health と /metrics 以外のリクエストは全てサービスレジストリで解決する。
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router.NoRoute(
		s.resolveRoute(),
		s.authenticateRoute(),
		s.requireRoute(),
		s.authorizeRoute(),
		s.handleForward(),
	)
}

// Handler はGatewayのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Gatewayサービスを起動します",
		zap.Int("routes", len(s.registry.Routes())),
		zap.String("rate_limit_backend", s.cfg.RateLimitBackend),
	)

	var tasks []httpserver.Task
	if s.memoryStore != nil {
		tasks = append(tasks, func(ctx context.Context) error {
			s.memoryStore.RunSweeper(ctx, sweepInterval, s.cfg.RateLimitWindow)
			return nil
		})
	}
	return httpserver.Run(ctx, ":"+s.cfg.Port, s.router, s.logger, tasks...)
}

// Close はサーバーが保持する外部接続を閉じる。
func (s *Server) Close() error {
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}

// resolveRoute はパスに一致するルートをコンテキストに設定するステージ。
// 一致しない場合もここでは中断せず、認証後に404を返す。
// ドットセグメントを含むパスは接頭辞をまたいで解釈が変わるため400を返す。
func (s *Server) resolveRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		escaped := c.Request.URL.EscapedPath()
		if hasDotSegment(escaped) {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgBadRequest, "path must not contain dot segments")
			return
		}
		route, subPath, ok := s.registry.Match(escaped)
		if !ok {
			c.Set(contextKeyRouteLabel, routeLabelUnmatched)
			return
		}
		c.Set(contextKeyRoute, route)
		c.Set(contextKeySubPath, subPath)
		c.Set(contextKeyRouteLabel, route.Name)
	}
}

// authenticateRoute は認証が必要なルートでトークンを検証するステージ。
// どのルートにも一致しないパスは認証が必要なものとして扱う。
func (s *Server) authenticateRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		if route := getRoute(c); route != nil && !route.RequiresAuth {
			return
		}
		s.authenticate(c)
	}
}

// requireRoute はルートに一致しなかったリクエストに404を返すステージ。
func (s *Server) requireRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		if getRoute(c) != nil {
			return
		}
		s.logger.Debug("一致するルートがありません",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		middleware.AbortWithError(c, http.StatusNotFound, middleware.MsgNotFound)
	}
}

// authorizeRoute はルートにロールが指定されている場合に認可を行うステージ。
func (s *Server) authorizeRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		check, ok := s.roleChecks[getRoute(c).Name]
		if !ok {
			return
		}
		check(c)
	}
}

// handleForward はバックエンドへリクエストを転送するハンドラを返す。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.proxy.forward(c.Writer, c.Request, &forwardTarget{
			route:     getRoute(c),
			subPath:   c.GetString(contextKeySubPath),
			principal: middleware.GetPrincipal(c),
			requestID: middleware.GetRequestID(c),
		})
	}
}

// getRoute はresolveRouteが設定したルートを返す。一致しなかった場合は nil を返す。
func getRoute(c *gin.Context) *Route {
	v, ok := c.Get(contextKeyRoute)
	if !ok {
		return nil
	}
	route, _ := v.(*Route)
	return route
}
