package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// レート制限カウンタの保持先。
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// envDevelopment は開発環境を表すAPP_ENVの値。
const envDevelopment = "development"

// developmentJWTSecret は開発環境でJWT_SECRETが未設定の場合に使う秘密鍵。
const developmentJWTSecret = "secretkey"

// ErrInvalidConfig は設定値が不正な場合のエラー。
var ErrInvalidConfig = errors.New("設定が不正です")

// RouteConfig はサービスレジストリの1エントリの設定。
type RouteConfig struct {
	// Name はルートの識別名。ログとメトリクスのラベルに使う。
	Name string `yaml:"name"`
	// Prefix は照合するパスの接頭辞。
	Prefix string `yaml:"prefix"`
	// Target は転送先のURL。
	Target string `yaml:"target"`
	// RequiresAuth は認証が必要かどうか。
	RequiresAuth bool `yaml:"requiresAuth"`
	// Roles はアクセスに必要なロール（いずれか1つ）。
	Roles []string `yaml:"roles"`
}

// routesFile はROUTES_FILEで指定するYAMLファイルの形式。
type routesFile struct {
	Routes []RouteConfig `yaml:"routes"`
}

// Config はGatewayの設定。起動時に一度だけ読み込み、以後は変更しない。
type Config struct {
	Port     string
	Env      string
	LogLevel string

	JWTSecret    string
	JWTAlgorithm string

	RateLimitWindow  time.Duration
	RateLimitMax     int
	RateLimitBackend string
	RedisAddr        string

	CORS middleware.CORSConfig

	ProxyTimeout   time.Duration
	TrustedProxies []string

	Routes []RouteConfig
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

// loadConfig は指定された参照関数で環境変数を読み込み、設定を検証する。
func loadConfig(getenv func(string) string) (Config, error) {
	env := envOr(getenv, "APP_ENV", envDevelopment)
	cfg := Config{
		Port:             envOr(getenv, "PORT", "3000"),
		Env:              env,
		LogLevel:         envOr(getenv, "LOG_LEVEL", "info"),
		JWTSecret:        getenv("JWT_SECRET"),
		JWTAlgorithm:     envOr(getenv, "JWT_ALGORITHM", middleware.DefaultAlgorithm),
		RateLimitBackend: envOr(getenv, "RATE_LIMIT_BACKEND", RateLimitBackendMemory),
		RedisAddr:        envOr(getenv, "REDIS_ADDR", "localhost:6379"),
		CORS: middleware.CORSConfig{
			AllowedOrigins: splitList(envOr(getenv, "CORS_ORIGIN", "*")),
			AllowedMethods: splitList(envOr(getenv, "CORS_METHODS", strings.Join(middleware.DefaultCORSMethods, ","))),
		},
		TrustedProxies: splitList(getenv("TRUSTED_PROXIES")),
	}

	if cfg.JWTSecret == "" {
		if env != envDevelopment {
			return Config{}, fmt.Errorf("%w: JWT_SECRETが設定されていません", ErrInvalidConfig)
		}
		cfg.JWTSecret = developmentJWTSecret
	}

	var err error
	if cfg.RateLimitWindow, err = durationOr(getenv, "RATE_LIMIT_WINDOW", ratelimit.DefaultWindow); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitMax, err = intOr(getenv, "RATE_LIMIT_MAX", ratelimit.DefaultMax); err != nil {
		return Config{}, err
	}
	if cfg.ProxyTimeout, err = durationOr(getenv, "PROXY_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ProxyTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: PROXY_TIMEOUTは正の値である必要があります", ErrInvalidConfig)
	}

	switch cfg.RateLimitBackend {
	case RateLimitBackendMemory, RateLimitBackendRedis:
	default:
		return Config{}, fmt.Errorf("%w: RATE_LIMIT_BACKEND=%q", ErrInvalidConfig, cfg.RateLimitBackend)
	}

	if path := getenv("ROUTES_FILE"); path != "" {
		cfg.Routes, err = loadRoutesFile(path)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg.Routes, err = defaultRoutes(getenv)
		if err != nil {
			return Config{}, err
		}
	}

	if err := applyAuthOverrides(getenv, cfg.Routes); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultRoutes は各サービスのURL環境変数から既定のレジストリを組み立てる。
func defaultRoutes(getenv func(string) string) ([]RouteConfig, error) {
	authURL := envOr(getenv, "AUTH_SERVICE_URL", "http://localhost:4001")
	loginURL, err := url.JoinPath(authURL, "login")
	if err != nil {
		return nil, fmt.Errorf("%w: AUTH_SERVICE_URL=%q: %w", ErrInvalidConfig, authURL, err)
	}

	return []RouteConfig{
		{Name: "auth-login", Prefix: "/api/auth/login", Target: loginURL},
		{Name: "auth", Prefix: "/api/auth", Target: authURL, RequiresAuth: true},
		{
			Name:         "customers",
			Prefix:       "/api/customers",
			Target:       envOr(getenv, "CUSTOMER_SERVICE_URL", "http://localhost:4002"),
			RequiresAuth: true,
			Roles:        []string{authz.RoleAdmin, authz.RoleSalesRep},
		},
		{
			Name:         "sales",
			Prefix:       "/api/sales",
			Target:       envOr(getenv, "SALES_SERVICE_URL", "http://localhost:4003"),
			RequiresAuth: true,
			Roles:        []string{authz.RoleAdmin, authz.RoleSalesRep},
		},
		{Name: "health-check", Prefix: "/api/health-check", Target: envOr(getenv, "HEALTH_CHECK_URL", "http://localhost:8081")},
	}, nil
}

// loadRoutesFile はYAMLファイルからレジストリの設定を読み込む。
func loadRoutesFile(path string) ([]RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート定義ファイルの読み込みに失敗: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: ルート定義ファイルのパースに失敗: %w", ErrInvalidConfig, err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("%w: ルート定義ファイルにルートがありません", ErrInvalidConfig)
	}
	return f.Routes, nil
}

// applyAuthOverrides は <NAME>_REQUIRES_AUTH 環境変数でルートの認証要否を上書きする。
func applyAuthOverrides(getenv func(string) string, routes []RouteConfig) error {
	for i := range routes {
		key := overrideKey(routes[i].Name)
		v := getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
		}
		routes[i].RequiresAuth = b
	}
	return nil
}

// overrideKey はルート名から認証要否を上書きする環境変数名を作る。
// 例: "auth-login" → "AUTH_LOGIN_REQUIRES_AUTH"
func overrideKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_REQUIRES_AUTH"
}

// envOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func envOr(getenv func(string) string, key, defaultValue string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// durationOr は環境変数を時間として解釈する。
// "15m" のような単位付きの値に加え、ミリ秒の整数も受け付ける。
func durationOr(getenv func(string) string, key string, defaultValue time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	return d, nil
}

// intOr は環境変数を整数として解釈する。
func intOr(getenv func(string) string, key string, defaultValue int) (int, error) {
	v := getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	return n, nil
}

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
