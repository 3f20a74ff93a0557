package user

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// 開発環境で使う既定値。本番環境ではいずれも環境変数で指定する。
const (
	envDevelopment         = "development"
	developmentJWTSecret   = "secretkey"
	developmentAdminEmail  = "admin@example.com"
	developmentAdminPasswd = "admin123"
)

// ErrInvalidConfig は設定値が不正な場合のエラー。
var ErrInvalidConfig = errors.New("設定が不正です")

// Config はユーザーサービスの設定。
type Config struct {
	Port     string
	Env      string
	LogLevel string
	DBPath   string

	JWTSecret    string
	JWTExpiresIn time.Duration
	BcryptCost   int

	// AdminEmail と AdminPassword は起動時に作成する管理者。
	// AdminPasswordが空の場合は作成しない。
	AdminEmail    string
	AdminPassword string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	env := envOr(getenv, "APP_ENV", envDevelopment)
	cfg := Config{
		Port:          envOr(getenv, "PORT", "4001"),
		Env:           env,
		LogLevel:      envOr(getenv, "LOG_LEVEL", "info"),
		DBPath:        envOr(getenv, "DB_PATH", "/data/user.db"),
		JWTSecret:     getenv("JWT_SECRET"),
		AdminEmail:    envOr(getenv, "ADMIN_EMAIL", developmentAdminEmail),
		AdminPassword: getenv("ADMIN_PASSWORD"),
	}

	if env == envDevelopment {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = developmentJWTSecret
		}
		if cfg.AdminPassword == "" {
			cfg.AdminPassword = developmentAdminPasswd
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("%w: JWT_SECRETが設定されていません", ErrInvalidConfig)
	}

	var err error
	if cfg.JWTExpiresIn, err = expiresIn(getenv("JWT_EXPIRES_IN")); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = bcryptCost(getenv("BCRYPT_COST")); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// expiresIn はトークンの有効期間を解釈する。整数は秒として扱う。
func expiresIn(v string) (time.Duration, error) {
	if v == "" {
		return time.Hour, nil
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: JWT_EXPIRES_IN=%q", ErrInvalidConfig, v)
	}
	return d, nil
}

func bcryptCost(v string) (int, error) {
	if v == "" {
		return bcrypt.DefaultCost, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < bcrypt.MinCost || n > bcrypt.MaxCost {
		return 0, fmt.Errorf("%w: BCRYPT_COST=%q", ErrInvalidConfig, v)
	}
	return n, nil
}

func envOr(getenv func(string) string, key, defaultValue string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultValue
}
