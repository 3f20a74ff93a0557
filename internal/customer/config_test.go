package customer

import "testing"

// TestLoadConfig は環境変数からの設定読み込みを検証する。
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("開発環境では既定の秘密鍵が使われること", func(t *testing.T) {
		t.Parallel()

		cfg := loadConfig(func(string) string { return "" })
		if cfg.Port != "4002" {
			t.Errorf("Port = %q, want %q", cfg.Port, "4002")
		}
		if cfg.JWTSecret != developmentJWTSecret {
			t.Errorf("JWTSecret = %q, want %q", cfg.JWTSecret, developmentJWTSecret)
		}
	})

	t.Run("本番環境で秘密鍵がない場合はトークンを検証しないこと", func(t *testing.T) {
		t.Parallel()

		cfg := loadConfig(func(key string) string {
			if key == "APP_ENV" {
				return "production"
			}
			return ""
		})
		if cfg.JWTSecret != "" {
			t.Errorf("JWTSecret = %q, want empty", cfg.JWTSecret)
		}
	})
}
