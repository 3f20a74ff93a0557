package sales

import "os"

// 開発環境で使う既定値。
const (
	envDevelopment       = "development"
	developmentJWTSecret = "secretkey"
)

// Config は営業サービスの設定。
type Config struct {
	Port     string
	Env      string
	LogLevel string
	DBPath   string

	// JWTSecret はGatewayを経由しない呼び出しのトークン検証に使う。
	// 空の場合は信頼済みヘッダーだけで主体を判定する。
	JWTSecret string

	// CustomerServiceURL は案件作成時に顧客の存在を確認する顧客サービスのURL。
	// 空の場合は確認しない。
	CustomerServiceURL string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) Config {
	cfg := Config{
		Port:               envOr(getenv, "PORT", "4003"),
		Env:                envOr(getenv, "APP_ENV", envDevelopment),
		LogLevel:           envOr(getenv, "LOG_LEVEL", "info"),
		DBPath:             envOr(getenv, "DB_PATH", "/data/sales.db"),
		JWTSecret:          getenv("JWT_SECRET"),
		CustomerServiceURL: getenv("CUSTOMER_SERVICE_URL"),
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
