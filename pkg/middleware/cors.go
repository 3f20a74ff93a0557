package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig はクロスオリジンポリシーの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジン。"*" を含む場合は全オリジンを許可する。
	AllowedOrigins []string
	// AllowedMethods は許可するHTTPメソッド。
	AllowedMethods []string
}

// DefaultCORSMethods はCORSで許可するデフォルトのメソッド。
var DefaultCORSMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch,
}

// corsHeaders はCORSミドルウェアが設定するヘッダー。
var corsHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Max-Age",
}

// defaultAllowHeaders はプリフライトで要求ヘッダーが示されない場合に許可するヘッダー。
const defaultAllowHeaders = "Authorization, Content-Type"

// CORS は設定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// OPTIONSリクエストには204を返して処理を終了する。
func CORS(cfg CORSConfig) gin.HandlerFunc {
	allowAll := slices.Contains(cfg.AllowedOrigins, "*")
	originsSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		originsSet[o] = struct{}{}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	allowMethods := strings.Join(methods, ",")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := allowAll
		if !allowAll && origin != "" {
			_, allowed = originsSet[origin]
		}
		if allowed {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", allowMethods)
		}

		if c.Request.Method == http.MethodOptions {
			if allowed {
				allowHeaders := c.GetHeader("Access-Control-Request-Headers")
				if allowHeaders == "" {
					allowHeaders = defaultAllowHeaders
				}
				c.Header("Access-Control-Allow-Headers", allowHeaders)
				c.Header("Access-Control-Max-Age", "86400")
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
