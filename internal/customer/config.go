package customer

import "os"

// 開発環境で使う既定値。
const (
	envDevelopment       = "development"
	developmentJWTSecret = "secretkey"
)

// Config は顧客サービスの設定。
type Config struct {
	Port     string
	Env      string
	LogLevel string
	DBPath   string

	// JWTSecret はGatewayを経由しない呼び出しのトークン検証に使う。
	// 空の場合は信頼済みヘッダーだけで主体を判定する。
	JWTSecret string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) Config {
	cfg := Config{
		Port:      envOr(getenv, "PORT", "4002"),
		Env:       envOr(getenv, "APP_ENV", envDevelopment),
		LogLevel:  envOr(getenv, "LOG_LEVEL", "info"),
		DBPath:    envOr(getenv, "DB_PATH", "/data/customer.db"),
		JWTSecret: getenv("JWT_SECRET"),
	}
	if cfg.JWTSecret == "" && cfg.Env == envDevelopment {
		cfg.JWTSecret = developmentJWTSecret
	}
	return cfg
}

func envOr(getenv func(string) string, key, defaultValue string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultValue
}
