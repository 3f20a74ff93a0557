package middleware

import "github.com/gin-gonic/gin"

// securityHeaders は全レスポンスに付与する固定のヘッダーポリシー。
var securityHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'self'"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"X-XSS-Protection", "0"},
}

// serverSignatureHeaders はサーバーの実装を露出するため削除するヘッダー。
var serverSignatureHeaders = []string{"Server", "X-Powered-By"}

// SecureHeaders はクリックジャッキングやコンテンツスニッフィング対策の
// ヘッダーを全レスポンスに付与するGinミドルウェアを返す。
// リクエストを拒否することはない。
func SecureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		for _, name := range serverSignatureHeaders {
			h.Del(name)
		}
		c.Next()
	}
}

// ManagedHeaderNames はこのパッケージのミドルウェアが管理するレスポンスヘッダー名を返す。
// リバースプロキシが上流のレスポンスから同名のヘッダーを取り除くために使用する。
func ManagedHeaderNames() []string {
	names := make([]string, 0, len(securityHeaders)+len(serverSignatureHeaders)+len(corsHeaders))
	for _, kv := range securityHeaders {
		names = append(names, kv[0])
	}
	names = append(names, serverSignatureHeaders...)
	names = append(names, corsHeaders...)
	return names
}
