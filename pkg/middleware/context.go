package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
)

// Ginコンテキストのキー。
const (
	contextKeyRequestID = "request_id"
	contextKeyPrincipal = "principal"
	contextKeyUserID    = "user_id"
)

// GetRequestID はGinコンテキストからリクエストIDを取得する。
// RequestIDミドルウェアが事前に適用されている必要がある。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// SetPrincipal は認証済みの主体をGinコンテキストに設定する。
func SetPrincipal(c *gin.Context, p *authz.Principal) {
	c.Set(contextKeyPrincipal, p)
	c.Set(contextKeyUserID, p.UserID)
}

// GetPrincipal はGinコンテキストから認証済みの主体を取得する。
// 未認証の場合は nil を返す。
func GetPrincipal(c *gin.Context) *authz.Principal {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*authz.Principal)
	return p
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}
